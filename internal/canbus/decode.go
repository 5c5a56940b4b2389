package canbus

import (
	"fmt"
	"math"

	"github.com/banshee-data/canbus.report/internal/dbc"
)

// TruncatedFrameError reports a frame whose payload is shorter than a signal
// in its message spec needs. The whole frame is dropped, not just the one
// signal: a short frame means the row is invalid, not an individual field.
type TruncatedFrameError struct {
	ArbitrationID uint32
	FieldName     string
	ByteOffset    int
	ByteWidth     int
	FrameLength   uint8
}

func (e *TruncatedFrameError) Error() string {
	return fmt.Sprintf("truncated frame 0x%X: signal %s needs bytes [%d,%d) but frame has %d bytes",
		e.ArbitrationID, e.FieldName, e.ByteOffset, e.ByteOffset+e.ByteWidth, e.FrameLength)
}

// Decoder turns raw frames into decoded signal records using a shared
// read-only dictionary.
type Decoder struct {
	dict *dbc.Dictionary
}

func NewDecoder(dict *dbc.Dictionary) *Decoder {
	return &Decoder{dict: dict}
}

// Decode decodes one frame. An unknown arbitration id returns a wrapped
// dbc.ErrUnknownMessage and a payload shorter than any signal needs returns
// a *TruncatedFrameError; both mean "drop this frame and keep going", the
// caller only counts them. A nil error always comes with a record carrying
// every signal of the matched message type.
func (d *Decoder) Decode(f RawFrame, sourceID string) (*DecodedSignal, error) {
	spec, err := d.dict.Lookup(f.ArbitrationID)
	if err != nil {
		return nil, err
	}

	out := &DecodedSignal{
		Timestamp:     f.Timestamp,
		ArbitrationID: f.ArbitrationID,
		MessageName:   spec.Name,
		Fields:        make(map[string]float64),
		BoolFields:    make(map[string]bool),
		SourceID:      sourceID,
	}

	for _, sig := range spec.Signals {
		raw, err := extractRaw(&f, &sig)
		if err != nil {
			return nil, err
		}
		if sig.Bool {
			out.BoolFields[sig.FieldName] = raw != 0
			continue
		}
		out.Fields[sig.FieldName] = float64(raw)*sig.Scale + sig.Offset
	}

	return out, nil
}

// extractRaw pulls ByteWidth bytes at ByteOffset out of the frame payload as
// an unsigned integer in the signal's byte order.
func extractRaw(f *RawFrame, sig *dbc.SignalSpec) (uint64, error) {
	if sig.ByteOffset+sig.ByteWidth > int(f.Length) {
		return 0, &TruncatedFrameError{
			ArbitrationID: f.ArbitrationID,
			FieldName:     sig.FieldName,
			ByteOffset:    sig.ByteOffset,
			ByteWidth:     sig.ByteWidth,
			FrameLength:   f.Length,
		}
	}

	var raw uint64
	if sig.ByteOrder == dbc.BigEndian {
		for i := 0; i < sig.ByteWidth; i++ {
			raw = raw<<8 | uint64(f.Payload[sig.ByteOffset+i])
		}
	} else {
		for i := sig.ByteWidth - 1; i >= 0; i-- {
			raw = raw<<8 | uint64(f.Payload[sig.ByteOffset+i])
		}
	}
	return raw, nil
}

// Encode is the inverse of Decode: it packs physical values back into a
// frame payload using the message spec. Used by the log generator and by
// round-trip tests.
func Encode(spec *dbc.MessageSpec, fields map[string]float64, boolFields map[string]bool) (RawFrame, error) {
	var f RawFrame
	f.ArbitrationID = spec.ArbitrationID
	f.Length = MaxPayloadLen

	for _, sig := range spec.Signals {
		var raw uint64
		if sig.Bool {
			if boolFields[sig.FieldName] {
				raw = 1
			}
		} else {
			v, ok := fields[sig.FieldName]
			if !ok {
				return RawFrame{}, fmt.Errorf("encode %s: missing field %s", spec.Name, sig.FieldName)
			}
			scaled := math.Round((v - sig.Offset) / sig.Scale)
			if scaled < 0 {
				return RawFrame{}, fmt.Errorf("encode %s.%s: value %v underflows unsigned raw", spec.Name, sig.FieldName, v)
			}
			raw = uint64(scaled)
		}

		if sig.ByteOrder == dbc.BigEndian {
			for i := sig.ByteWidth - 1; i >= 0; i-- {
				f.Payload[sig.ByteOffset+i] = byte(raw)
				raw >>= 8
			}
		} else {
			for i := 0; i < sig.ByteWidth; i++ {
				f.Payload[sig.ByteOffset+i] = byte(raw)
				raw >>= 8
			}
		}
	}
	return f, nil
}
