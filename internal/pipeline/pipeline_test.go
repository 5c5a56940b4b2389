package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/canbus.report/internal/canbus"
	"github.com/banshee-data/canbus.report/internal/config"
	"github.com/banshee-data/canbus.report/internal/db"
	"github.com/banshee-data/canbus.report/internal/dbc"
	"github.com/banshee-data/canbus.report/internal/events"
	"github.com/banshee-data/canbus.report/internal/monitoring"
	"github.com/banshee-data/canbus.report/internal/timeutil"
)

func testStore(t *testing.T) *db.DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	store, err := db.NewDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	if err := store.MigrateUpEmbedded(); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		_ = os.Remove(fname)
		_ = os.Remove(fname + "-shm")
		_ = os.Remove(fname + "-wal")
	})
	return store
}

func testDict(t *testing.T) *dbc.Dictionary {
	t.Helper()
	dict, err := dbc.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded: %v", err)
	}
	return dict
}

// speedFrame packs a big-endian raw speed value for message 0x100.
func speedFrame(ts float64, speedKmh float64) Frame {
	raw := uint16(speedKmh / 0.01)
	f := canbus.RawFrame{
		Timestamp:     ts,
		Channel:       "can0",
		ArbitrationID: 0x100,
		Length:        8,
	}
	f.Payload[0] = byte(raw >> 8)
	f.Payload[1] = byte(raw)
	return Frame{Raw: f, SourceID: "veh-1"}
}

// steeringFrame packs a big-endian raw steering angle for message 0x103.
func steeringFrame(ts float64, angleDeg float64) Frame {
	raw := uint16((angleDeg + 1080) / 0.1)
	f := canbus.RawFrame{
		Timestamp:     ts,
		Channel:       "can0",
		ArbitrationID: 0x103,
		Length:        8,
	}
	f.Payload[0] = byte(raw >> 8)
	f.Payload[1] = byte(raw)
	return Frame{Raw: f, SourceID: "veh-1"}
}

func unknownFrame(ts float64) Frame {
	return Frame{
		Raw: canbus.RawFrame{
			Timestamp:     ts,
			Channel:       "can0",
			ArbitrationID: 0x3E7, // 999, not in the dictionary
			Length:        8,
		},
		SourceID: "veh-1",
	}
}

func TestObserveCountsDrops(t *testing.T) {
	p := New(testDict(t), nil, config.EmptyTuningConfig(), nil)

	p.Observe(speedFrame(10.00, 80))
	p.Observe(unknownFrame(10.01))
	p.Observe(speedFrame(10.02, 80))

	c := p.Counters()
	if c.Ingested != 3 {
		t.Errorf("ingested = %d, want 3", c.Ingested)
	}
	if c.Decoded != 2 {
		t.Errorf("decoded = %d, want 2", c.Decoded)
	}
	if c.Unknown != 1 {
		t.Errorf("unknown = %d, want 1", c.Unknown)
	}
}

func TestUnorderedSourcePoisoned(t *testing.T) {
	p := New(testDict(t), nil, config.EmptyTuningConfig(), nil)

	p.Observe(speedFrame(10.02, 80))
	p.Observe(speedFrame(10.00, 80)) // goes backwards
	p.Observe(speedFrame(10.04, 80)) // discarded, source is poisoned

	if p.Counters().Decoded != 1 {
		t.Errorf("decoded = %d, want 1 (frames after violation dropped)", p.Counters().Decoded)
	}

	err := p.finish()
	if err == nil {
		t.Fatal("expected ordering error from finish")
	}
	var uerr *events.UnorderedInputError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnorderedInputError, got %v", err)
	}
	if uerr.SourceID != "veh-1" {
		t.Errorf("source = %q", uerr.SourceID)
	}
}

func TestRunEndToEnd(t *testing.T) {
	store := testStore(t)
	clock := timeutil.NewMockClock(time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC))
	p := New(testDict(t), store, config.EmptyTuningConfig(), clock)

	frames := make(chan Frame, 64)
	// Steady 80 km/h, then a hard stop: 80 -> 76 across adjacent
	// 100 ms buckets is -40 km/h/s.
	base := 1756400000.0
	for i := 0; i < 10; i++ {
		frames <- speedFrame(base+float64(i)*0.1, 80)
	}
	frames <- speedFrame(base+1.0, 76)
	frames <- unknownFrame(base + 1.05)
	close(frames)

	if err := p.Run(context.Background(), frames); err != nil {
		t.Fatalf("Run: %v", err)
	}

	signals, err := store.SignalsByRange(db.SignalQuery{})
	if err != nil {
		t.Fatalf("SignalsByRange: %v", err)
	}
	if len(signals) != 11 {
		t.Errorf("persisted signals = %d, want 11", len(signals))
	}

	evs, err := store.EventsByRange(db.EventQuery{})
	if err != nil {
		t.Fatalf("EventsByRange: %v", err)
	}
	if len(evs) != 1 || evs[0].EventType != events.TypeHardBrake {
		t.Fatalf("expected one hard_brake event, got %+v", evs)
	}

	run, err := store.GetIngestRun(p.RunID())
	if err != nil {
		t.Fatalf("GetIngestRun: %v", err)
	}
	if run.FramesIngested != 12 || run.FramesUnknown != 1 {
		t.Errorf("run counters = %+v", run)
	}
	if run.FinishedAt == nil {
		t.Error("run not marked finished")
	}

	rollups, err := store.VehicleStatsByRange(db.StatsQuery{})
	if err != nil {
		t.Fatalf("VehicleStatsByRange: %v", err)
	}
	if len(rollups) != 1 {
		t.Fatalf("expected one daily rollup, got %d", len(rollups))
	}
	if rollups[0].SampleCount != 11 {
		t.Errorf("rollup sample count = %d, want 11", rollups[0].SampleCount)
	}
}

func TestLateWindowFrameLogged(t *testing.T) {
	// Two individually ordered sources on one channel can still land a
	// frame in a quality window another source already closed. The drop
	// must leave a trace.
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})

	p := New(testDict(t), nil, config.EmptyTuningConfig(), nil)

	p.Observe(speedFrame(100, 80))
	b := speedFrame(170, 80)
	b.SourceID = "veh-2"
	p.Observe(b) // closes veh-1's window for the shared (id, channel) key

	c := speedFrame(30, 64)
	c.SourceID = "veh-3"
	p.Observe(c) // lands in the closed window

	found := false
	for _, line := range logged {
		if strings.Contains(line, "quality") && strings.Contains(line, "already closed") {
			found = true
		}
	}
	if !found {
		t.Errorf("late-window drop left no log line: %v", logged)
	}
	if p.Counters().Decoded != 3 {
		t.Errorf("decoded = %d, want 3 (late frame still decodes)", p.Counters().Decoded)
	}
}

func TestFlushBoundaryKeepsBucketFields(t *testing.T) {
	// A 100 ms bucket whose frames land on both sides of a flush must
	// keep the first half's fields in the stored row.
	store := testStore(t)
	p := New(testDict(t), store, config.EmptyTuningConfig(), nil)

	base := 1756400000.0
	p.Observe(speedFrame(base, 80))
	if err := p.Flush(); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	p.Observe(steeringFrame(base+0.05, 12))
	if err := p.Flush(); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	samples, err := store.SamplesByRange(db.SampleQuery{SourceID: "veh-1"})
	if err != nil {
		t.Fatalf("SamplesByRange: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected one bucket, got %d", len(samples))
	}
	if samples[0].SpeedKmh == nil || *samples[0].SpeedKmh != 80 {
		t.Errorf("speed from before the flush was lost: %+v", samples[0])
	}
	if samples[0].SteeringAngle == nil {
		t.Errorf("steering from after the flush missing: %+v", samples[0])
	}
}

func TestFlushTickerDriven(t *testing.T) {
	store := testStore(t)
	clock := timeutil.NewMockClock(time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC))
	p := New(testDict(t), store, config.EmptyTuningConfig(), clock)

	frames := make(chan Frame, 8)
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { done <- p.Run(ctx, frames) }()

	frames <- speedFrame(1756400000.0, 64)

	// Nothing persisted until the flush interval elapses.
	deadline := time.Now().Add(2 * time.Second)
	for {
		clock.Advance(5 * time.Second)
		signals, err := store.SignalsByRange(db.SignalQuery{})
		if err == nil && len(signals) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("flush did not run after ticker fired")
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(frames)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
