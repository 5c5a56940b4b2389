package canbus

import (
	"testing"
)

func TestParseCandumpLine(t *testing.T) {
	f, err := ParseCandumpLine("(1700000000.123456) can0 100#1F40000000000000")
	if err != nil {
		t.Fatalf("ParseCandumpLine failed: %v", err)
	}
	if f.Timestamp != 1700000000.123456 {
		t.Errorf("timestamp: got %v", f.Timestamp)
	}
	if f.Channel != "can0" {
		t.Errorf("channel: got %q", f.Channel)
	}
	if f.ArbitrationID != 0x100 {
		t.Errorf("arbitration id: got 0x%X", f.ArbitrationID)
	}
	if f.Length != 8 || f.Payload[0] != 0x1F || f.Payload[1] != 0x40 {
		t.Errorf("payload: got %v len %d", f.Payload, f.Length)
	}
}

func TestParseCandumpLineErrors(t *testing.T) {
	bad := []string{
		"",
		"can0 100#11",
		"(abc) can0 100#11",
		"(1.0) can0 100",
		"(1.0) can0 zzz#11",
		"(1.0) can0 100#zz",
		"(1.0) can0 100#112233445566778899", // 9 bytes
	}
	for _, line := range bad {
		if _, err := ParseCandumpLine(line); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestCandumpRoundTrip(t *testing.T) {
	in := frame(0x103, 0x2A, 0x30, 0, 0, 0, 0, 0, 0)
	in.Timestamp = 1700000123.5
	out, err := ParseCandumpLine(FormatCandumpLine(in))
	if err != nil {
		t.Fatalf("round trip parse failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestParseSLCANLine(t *testing.T) {
	f, err := ParseSLCANLine("t10081F40000000000000", 42.5, "slcan0")
	if err != nil {
		t.Fatalf("ParseSLCANLine failed: %v", err)
	}
	if f.ArbitrationID != 0x100 || f.Length != 8 {
		t.Errorf("got id 0x%X len %d", f.ArbitrationID, f.Length)
	}
	if f.Timestamp != 42.5 || f.Channel != "slcan0" {
		t.Errorf("caller-supplied metadata not applied: %+v", f)
	}
	if f.Payload[0] != 0x1F || f.Payload[1] != 0x40 {
		t.Errorf("payload: got %v", f.Payload)
	}
}

func TestParseSLCANLineErrors(t *testing.T) {
	bad := []string{
		"",
		"r1000",                  // remote frame
		"T123456788AA",           // extended frame
		"t10",                    // too short
		"t100Z",                  // bad length nibble
		"t10021F",                // payload shorter than length code
		"t100912233445566778899", // length code 9
	}
	for _, line := range bad {
		if _, err := ParseSLCANLine(line, 0, "slcan0"); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestSLCANRoundTrip(t *testing.T) {
	in := frame(0x102, 0x64, 0x01)
	line := FormatSLCANLine(in)
	out, err := ParseSLCANLine(line, in.Timestamp, in.Channel)
	if err != nil {
		t.Fatalf("round trip parse failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}
