package canbus

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseCandumpLine parses one line of candump -L log output:
//
//	(1700000000.123456) can0 100#1F40000000000000
//
// This is the fixture/replay format: the generator writes it and dev mode
// reads it back.
func ParseCandumpLine(line string) (RawFrame, error) {
	var f RawFrame

	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 3 {
		return f, fmt.Errorf("malformed candump line: expected 3 fields, got %d", len(fields))
	}

	ts := strings.TrimSuffix(strings.TrimPrefix(fields[0], "("), ")")
	timestamp, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return f, fmt.Errorf("malformed candump timestamp %q: %v", fields[0], err)
	}

	idData := strings.SplitN(fields[2], "#", 2)
	if len(idData) != 2 {
		return f, fmt.Errorf("malformed candump frame %q: missing '#'", fields[2])
	}
	id, err := strconv.ParseUint(idData[0], 16, 32)
	if err != nil {
		return f, fmt.Errorf("malformed arbitration id %q: %v", idData[0], err)
	}
	data, err := hex.DecodeString(idData[1])
	if err != nil {
		return f, fmt.Errorf("malformed payload hex %q: %v", idData[1], err)
	}
	if len(data) > MaxPayloadLen {
		return f, fmt.Errorf("payload too long: %d bytes", len(data))
	}

	f.Timestamp = timestamp
	f.Channel = fields[1]
	f.ArbitrationID = uint32(id)
	f.Length = uint8(len(data))
	copy(f.Payload[:], data)
	return f, nil
}

// FormatCandumpLine renders a frame in candump -L format.
func FormatCandumpLine(f RawFrame) string {
	return fmt.Sprintf("(%.6f) %s %03X#%s",
		f.Timestamp, f.Channel, f.ArbitrationID, strings.ToUpper(hex.EncodeToString(f.Data())))
}

// ParseSLCANLine parses one SLCAN (Lawicel serial CAN adapter) data frame
// line, e.g. "t1008112233445566 7788". SLCAN lines carry no timestamp or bus
// name, so the caller supplies the receive time and channel.
//
// Only standard-id data frames ('t') are accepted; remote and extended
// frames are reported as errors the caller drops.
func ParseSLCANLine(line string, timestamp float64, channel string) (RawFrame, error) {
	var f RawFrame

	line = strings.TrimSpace(line)
	if line == "" {
		return f, fmt.Errorf("empty SLCAN line")
	}
	if line[0] != 't' {
		return f, fmt.Errorf("unsupported SLCAN frame type %q", line[0])
	}
	if len(line) < 5 {
		return f, fmt.Errorf("short SLCAN line %q", line)
	}

	id, err := strconv.ParseUint(line[1:4], 16, 32)
	if err != nil {
		return f, fmt.Errorf("malformed SLCAN id %q: %v", line[1:4], err)
	}
	length, err := strconv.ParseUint(line[4:5], 16, 8)
	if err != nil || length > MaxPayloadLen {
		return f, fmt.Errorf("malformed SLCAN length %q", line[4:5])
	}
	if len(line) < 5+int(length)*2 {
		return f, fmt.Errorf("SLCAN line %q shorter than its length code %d", line, length)
	}
	data, err := hex.DecodeString(line[5 : 5+int(length)*2])
	if err != nil {
		return f, fmt.Errorf("malformed SLCAN payload hex: %v", err)
	}

	f.Timestamp = timestamp
	f.Channel = channel
	f.ArbitrationID = uint32(id)
	f.Length = uint8(length)
	copy(f.Payload[:], data)
	return f, nil
}

// FormatSLCANLine renders a frame as an SLCAN standard data frame line.
func FormatSLCANLine(f RawFrame) string {
	return fmt.Sprintf("t%03X%X%s", f.ArbitrationID&0x7FF, f.Length,
		strings.ToUpper(hex.EncodeToString(f.Data())))
}
