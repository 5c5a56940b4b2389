// Package dbc holds the signal dictionary: the static table of known CAN
// message layouts (arbitration id, byte layout, scale/offset, expected
// transmission period) that the decoder and quality tracker consult.
//
// The default dictionary for the demo vehicle is embedded in the binary so
// the pipeline can start without any external files; a JSON dictionary file
// can be supplied to override it.
package dbc

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed dicts/*.json
var embeddedDicts embed.FS

// DefaultExpectedPeriodMs is assumed for messages whose spec does not
// declare a transmission period. 100ms works out to 600 expected frames per
// 60s quality window.
const DefaultExpectedPeriodMs = 100

// ByteOrder selects how a multi-byte raw value is assembled from the payload.
type ByteOrder string

const (
	BigEndian    ByteOrder = "big"
	LittleEndian ByteOrder = "little"
)

// SignalSpec describes how one physical signal is packed into a message
// payload. Raw bytes are interpreted as an unsigned integer and converted to
// physical units via value = raw*Scale + Offset. Bool signals decode as
// raw != 0 instead.
type SignalSpec struct {
	FieldName  string    `json:"field_name"`
	ByteOffset int       `json:"byte_offset"`
	ByteWidth  int       `json:"byte_width"`
	ByteOrder  ByteOrder `json:"byte_order"`
	Scale      float64   `json:"scale"`
	Offset     float64   `json:"offset"`
	Unit       string    `json:"unit,omitempty"`
	Bool       bool      `json:"bool,omitempty"`
}

// MessageSpec describes one CAN message type: its arbitration id, name,
// expected transmission period and signal layout.
type MessageSpec struct {
	ArbitrationID    uint32       `json:"arbitration_id"`
	Name             string       `json:"name"`
	ExpectedPeriodMs float64      `json:"expected_period_ms,omitempty"`
	Signals          []SignalSpec `json:"signals"`
}

// PeriodMs returns the expected transmission period in milliseconds,
// falling back to fallbackMs when the spec does not declare one. A zero
// or negative fallback means DefaultExpectedPeriodMs.
func (m *MessageSpec) PeriodMs(fallbackMs float64) float64 {
	if m.ExpectedPeriodMs > 0 {
		return m.ExpectedPeriodMs
	}
	if fallbackMs > 0 {
		return fallbackMs
	}
	return DefaultExpectedPeriodMs
}

// ErrUnknownMessage reports an arbitration id with no dictionary entry.
// Callers treat this as "drop frame, keep going": unknown ids are expected
// noise on a real bus, never a pipeline failure.
var ErrUnknownMessage = errors.New("unknown arbitration id")

// MissingDictionaryError reports a dictionary that could not be loaded or
// validated at startup. Unlike a lookup miss this is fatal: the pipeline
// cannot decode anything without a dictionary.
type MissingDictionaryError struct {
	Path string
	Err  error
}

func (e *MissingDictionaryError) Error() string {
	return fmt.Sprintf("signal dictionary %q unavailable: %v", e.Path, e.Err)
}

func (e *MissingDictionaryError) Unwrap() error { return e.Err }

// Dictionary is an immutable, shared lookup table of MessageSpecs keyed by
// arbitration id. Lookup is O(1).
type Dictionary struct {
	byID     map[uint32]*MessageSpec
	messages []MessageSpec
}

// New builds a Dictionary from a message table, validating each spec.
func New(messages []MessageSpec) (*Dictionary, error) {
	d := &Dictionary{
		byID:     make(map[uint32]*MessageSpec, len(messages)),
		messages: make([]MessageSpec, len(messages)),
	}
	copy(d.messages, messages)
	for i := range d.messages {
		m := &d.messages[i]
		if err := validateMessage(m); err != nil {
			return nil, err
		}
		if _, dup := d.byID[m.ArbitrationID]; dup {
			return nil, fmt.Errorf("duplicate arbitration id 0x%X in dictionary", m.ArbitrationID)
		}
		d.byID[m.ArbitrationID] = m
	}
	return d, nil
}

func validateMessage(m *MessageSpec) error {
	if m.Name == "" {
		return fmt.Errorf("message 0x%X has no name", m.ArbitrationID)
	}
	if len(m.Signals) == 0 {
		return fmt.Errorf("message %s (0x%X) has no signals", m.Name, m.ArbitrationID)
	}
	for _, s := range m.Signals {
		if s.FieldName == "" {
			return fmt.Errorf("message %s has a signal with no field name", m.Name)
		}
		if s.ByteWidth < 1 || s.ByteWidth > 8 {
			return fmt.Errorf("signal %s.%s: byte width %d out of range (1-8)", m.Name, s.FieldName, s.ByteWidth)
		}
		if s.ByteOffset < 0 || s.ByteOffset+s.ByteWidth > 8 {
			return fmt.Errorf("signal %s.%s: bytes [%d,%d) exceed the 8 byte payload", m.Name, s.FieldName, s.ByteOffset, s.ByteOffset+s.ByteWidth)
		}
		if s.ByteOrder != BigEndian && s.ByteOrder != LittleEndian {
			return fmt.Errorf("signal %s.%s: invalid byte order %q", m.Name, s.FieldName, s.ByteOrder)
		}
		if !s.Bool && s.Scale == 0 {
			return fmt.Errorf("signal %s.%s: zero scale", m.Name, s.FieldName)
		}
	}
	return nil
}

// Lookup returns the MessageSpec for an arbitration id, or a wrapped
// ErrUnknownMessage when the dictionary has no entry for it.
func (d *Dictionary) Lookup(id uint32) (*MessageSpec, error) {
	m, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("no message spec for arbitration id 0x%X: %w", id, ErrUnknownMessage)
	}
	return m, nil
}

// Messages returns a copy of the dictionary's message table, for listing.
func (d *Dictionary) Messages() []MessageSpec {
	out := make([]MessageSpec, len(d.messages))
	copy(out, d.messages)
	return out
}

// Len returns the number of message types in the dictionary.
func (d *Dictionary) Len() int { return len(d.byID) }

// Load reads a dictionary from a JSON file. Any failure (absent file, bad
// JSON, invalid spec) is returned as a MissingDictionaryError so callers can
// treat it as fatal startup configuration.
func Load(path string) (*Dictionary, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, &MissingDictionaryError{Path: path, Err: fmt.Errorf("dictionary file must have .json extension, got %q", ext)}
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, &MissingDictionaryError{Path: path, Err: err}
	}
	return parse(path, data)
}

// LoadEmbedded loads the built-in dictionary for the demo vehicle.
func LoadEmbedded() (*Dictionary, error) {
	data, err := embeddedDicts.ReadFile("dicts/vehicle.json")
	if err != nil {
		return nil, &MissingDictionaryError{Path: "dicts/vehicle.json", Err: err}
	}
	return parse("dicts/vehicle.json", data)
}

func parse(path string, data []byte) (*Dictionary, error) {
	var messages []MessageSpec
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, &MissingDictionaryError{Path: path, Err: fmt.Errorf("failed to parse dictionary JSON: %w", err)}
	}
	d, err := New(messages)
	if err != nil {
		return nil, &MissingDictionaryError{Path: path, Err: err}
	}
	return d, nil
}
