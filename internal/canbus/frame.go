// Package canbus provides the raw CAN frame type, the frame decoder that
// turns frames into physical signal records using the dbc dictionary, and
// the text codecs for the SLCAN serial protocol and candump log files.
package canbus

import "fmt"

// MaxPayloadLen is the classic CAN payload limit in bytes.
const MaxPayloadLen = 8

// RawFrame is one captured CAN frame. Frames are immutable values: the
// capture source fills one in and every consumer reads it.
type RawFrame struct {
	Timestamp     float64 // seconds since the unix epoch
	Channel       string  // bus name, e.g. "can0"
	ArbitrationID uint32
	Length        uint8 // data length code, 0-8
	Payload       [MaxPayloadLen]byte
}

// Data returns the valid portion of the payload.
func (f *RawFrame) Data() []byte {
	n := f.Length
	if n > MaxPayloadLen {
		n = MaxPayloadLen
	}
	return f.Payload[:n]
}

func (f *RawFrame) String() string {
	return fmt.Sprintf("(%.6f) %s %03X#%X", f.Timestamp, f.Channel, f.ArbitrationID, f.Data())
}

// DecodedSignal is one successfully decoded frame: every signal defined for
// the message type, converted to physical units. Zero is a valid decoded
// value, never a sentinel for "missing".
type DecodedSignal struct {
	Timestamp     float64
	ArbitrationID uint32
	MessageName   string
	Fields        map[string]float64
	BoolFields    map[string]bool
	SourceID      string
}
