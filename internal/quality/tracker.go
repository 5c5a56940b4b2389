// Package quality scores CAN communication health: for every message type
// and fixed time window it compares the number of frames observed against
// the number the message's transmission period predicts.
package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/canbus.report/internal/canbus"
	"github.com/banshee-data/canbus.report/internal/dbc"
)

// DefaultWindowSeconds is the quality window length used when no tuning
// config overrides it.
const DefaultWindowSeconds = 60.0

// Window is one closed quality window for one (arbitration id, channel)
// pair. MissingRate is 1 - observed/expected and is deliberately not clamped:
// a burst of frames drives it negative, and downstream consumers use the
// sign as a burst indicator.
type Window struct {
	WindowStart      float64
	WindowEnd        float64
	ArbitrationID    uint32
	MessageName      string
	Channel          string
	MessageCount     int64
	ExpectedCount    int64
	ExpectedPeriodMs float64
	MissingRate      float64
}

type counterKey struct {
	id      uint32
	channel string
}

// counter is the per-key rolling window state: the open window and the
// highest timestamp seen so far (the key's watermark).
type counter struct {
	windowStart float64
	count       int64
	watermark   float64
}

// Tracker counts frames per (arbitration id, channel) in fixed timestamp
// windows. Windows are flushed one step late: a window closes only when a
// later frame for the same key arrives in a subsequent window, which keeps
// the tracker correct for batch replay where wall-clock timers mean nothing.
type Tracker struct {
	dict            *dbc.Dictionary
	windowLen       float64 // seconds
	defaultPeriodMs float64 // for messages without a declared period
	active          map[counterKey]*counter
}

// NewTracker returns a tracker over windows of windowLen seconds.
// defaultPeriodMs is the expected transmission period assumed for
// messages whose spec does not declare one; zero or negative falls back
// to dbc.DefaultExpectedPeriodMs.
func NewTracker(dict *dbc.Dictionary, windowLen, defaultPeriodMs float64) *Tracker {
	if windowLen <= 0 {
		windowLen = DefaultWindowSeconds
	}
	return &Tracker{
		dict:            dict,
		windowLen:       windowLen,
		defaultPeriodMs: defaultPeriodMs,
		active:          make(map[counterKey]*counter),
	}
}

// Observe counts one frame. It returns a non-nil Window when this frame's
// arrival closed the key's previous window. Unknown arbitration ids return a
// wrapped dbc.ErrUnknownMessage (drop and continue, same as the decoder); a
// frame whose window predates the key's open window is reported as an error
// and not counted, since windows must close in timestamp order within a key.
func (t *Tracker) Observe(f canbus.RawFrame) (*Window, error) {
	spec, err := t.dict.Lookup(f.ArbitrationID)
	if err != nil {
		return nil, err
	}

	k := counterKey{id: f.ArbitrationID, channel: f.Channel}
	ws := math.Floor(f.Timestamp/t.windowLen) * t.windowLen

	c, ok := t.active[k]
	if !ok {
		t.active[k] = &counter{windowStart: ws, count: 1, watermark: f.Timestamp}
		return nil, nil
	}

	if f.Timestamp > c.watermark {
		c.watermark = f.Timestamp
	}

	switch {
	case ws == c.windowStart:
		c.count++
		return nil, nil
	case ws < c.windowStart:
		return nil, fmt.Errorf("late frame 0x%X on %s at %.3f: window %v already closed (open window %v, seen up to %.3f)",
			f.ArbitrationID, f.Channel, f.Timestamp, ws, c.windowStart, c.watermark)
	}

	closed := t.close(k, c, spec)
	c.windowStart = ws
	c.count = 1
	return closed, nil
}

// FlushAll closes every open window, for end-of-input. The result is sorted
// by (window start, arbitration id, channel) so flush output is
// deterministic.
func (t *Tracker) FlushAll() []Window {
	var out []Window
	for k, c := range t.active {
		spec, err := t.dict.Lookup(k.id)
		if err != nil {
			continue // counter can only exist for known ids
		}
		out = append(out, *t.close(k, c, spec))
	}
	t.active = make(map[counterKey]*counter)

	sort.Slice(out, func(i, j int) bool {
		if out[i].WindowStart != out[j].WindowStart {
			return out[i].WindowStart < out[j].WindowStart
		}
		if out[i].ArbitrationID != out[j].ArbitrationID {
			return out[i].ArbitrationID < out[j].ArbitrationID
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

func (t *Tracker) close(k counterKey, c *counter, spec *dbc.MessageSpec) *Window {
	periodMs := spec.PeriodMs(t.defaultPeriodMs)
	expected := int64(math.Round(t.windowLen * 1000 / periodMs))

	w := &Window{
		WindowStart:      c.windowStart,
		WindowEnd:        c.windowStart + t.windowLen,
		ArbitrationID:    k.id,
		MessageName:      spec.Name,
		Channel:          k.channel,
		MessageCount:     c.count,
		ExpectedCount:    expected,
		ExpectedPeriodMs: periodMs,
	}
	if expected != 0 {
		w.MissingRate = 1 - float64(c.count)/float64(expected)
	}
	return w
}
