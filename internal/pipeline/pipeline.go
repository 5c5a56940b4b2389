// Package pipeline wires the decode, quality, aggregation, event and
// stats stages into one run loop feeding the telemetry database.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/canbus.report/internal/aggregate"
	"github.com/banshee-data/canbus.report/internal/canbus"
	"github.com/banshee-data/canbus.report/internal/config"
	"github.com/banshee-data/canbus.report/internal/db"
	"github.com/banshee-data/canbus.report/internal/dbc"
	"github.com/banshee-data/canbus.report/internal/events"
	"github.com/banshee-data/canbus.report/internal/monitoring"
	"github.com/banshee-data/canbus.report/internal/quality"
	"github.com/banshee-data/canbus.report/internal/stats"
	"github.com/banshee-data/canbus.report/internal/timeutil"
	"github.com/banshee-data/canbus.report/internal/units"
)

// Frame is one raw frame tagged with the vehicle source it came from.
type Frame struct {
	Raw      canbus.RawFrame
	SourceID string
}

// Counters is a snapshot of the run's frame accounting.
type Counters struct {
	Ingested  int64
	Decoded   int64
	Unknown   int64
	Truncated int64
	Events    int64
}

// Pipeline owns the per-run processing state. It is not safe for
// concurrent use; Run is the single consumer of the frame channel.
type Pipeline struct {
	runID   string
	dict    *dbc.Dictionary
	decoder *canbus.Decoder
	tracker *quality.Tracker
	agg     *aggregate.Aggregator
	det     *events.Detector
	summ    *stats.Summarizer
	store   *db.DB
	clock   timeutil.Clock

	flushInterval time.Duration
	batchSize     int

	pending  []canbus.DecodedSignal
	windows  []quality.Window
	lastTS   map[string]float64
	failed   map[string]error
	counters Counters
}

// New assembles a pipeline from the tuning config. The store may be
// nil for dry runs; stages still execute but nothing is persisted.
func New(dict *dbc.Dictionary, store *db.DB, cfg *config.TuningConfig, clock timeutil.Clock) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	// Config validation already checked the timezone; a load failure
	// here falls back to UTC bucketing.
	loc, err := units.LoadTimezone(cfg.GetTimezone())
	if err != nil {
		loc = time.UTC
	}
	return &Pipeline{
		runID:   uuid.NewString(),
		dict:    dict,
		decoder: canbus.NewDecoder(dict),
		tracker: quality.NewTracker(dict, cfg.GetQualityWindowSeconds(), cfg.GetDefaultPeriodMs()),
		agg:     aggregate.New(cfg.GetBucketSeconds()),
		det: events.New(cfg.GetBucketSeconds(), events.Thresholds{
			AccelKmhS:   cfg.GetAccelThresholdKmhS(),
			SteeringDeg: cfg.GetSteeringThresholdDeg(),
		}),
		summ:          stats.NewInLocation(loc),
		store:         store,
		clock:         clock,
		flushInterval: cfg.GetFlushInterval(),
		batchSize:     cfg.GetBatchSize(),
		lastTS:        make(map[string]float64),
		failed:        make(map[string]error),
	}
}

// RunID returns the UUID assigned to this run.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Counters returns a snapshot of the run's frame accounting.
func (p *Pipeline) Counters() Counters {
	return p.counters
}

// Run consumes frames until the channel closes or the context is
// cancelled, flushing to the store on the configured interval. It
// returns the accumulated per-source ordering errors, if any; frames
// from a source that violated ordering are discarded after the
// violation.
func (p *Pipeline) Run(ctx context.Context, frames <-chan Frame) error {
	if p.store != nil {
		startedAt := float64(p.clock.Now().UnixNano()) / 1e9
		if err := p.store.CreateIngestRun(p.runID, startedAt); err != nil {
			return fmt.Errorf("pipeline: failed to create run record: %w", err)
		}
	}

	ticker := p.clock.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.finish()
		case <-ticker.C():
			if err := p.Flush(); err != nil {
				monitoring.Logf("pipeline: flush failed: %v", err)
			}
		case f, ok := <-frames:
			if !ok {
				return p.finish()
			}
			p.Observe(f)
			if len(p.pending) >= p.batchSize {
				if err := p.Flush(); err != nil {
					monitoring.Logf("pipeline: flush failed: %v", err)
				}
			}
		}
	}
}

// Observe runs one frame through the decode and quality stages. Drops
// are counted, not surfaced; an ordering violation poisons the source.
func (p *Pipeline) Observe(f Frame) {
	if _, bad := p.failed[f.SourceID]; bad {
		return
	}
	p.counters.Ingested++
	monitoring.FramesIngested.WithLabelValues(f.SourceID).Inc()

	if last, ok := p.lastTS[f.SourceID]; ok && f.Raw.Timestamp < last {
		err := &events.UnorderedInputError{
			SourceID: f.SourceID,
			Previous: last,
			Current:  f.Raw.Timestamp,
		}
		p.failed[f.SourceID] = err
		monitoring.Logf("pipeline: source %s poisoned: %v", f.SourceID, err)
		return
	}
	p.lastTS[f.SourceID] = f.Raw.Timestamp

	// The quality stage sees every frame with a known arbitration id,
	// including frames the decoder later drops as truncated.
	w, terr := p.tracker.Observe(f.Raw)
	switch {
	case terr == nil:
		if w != nil {
			p.windows = append(p.windows, *w)
			monitoring.WindowsFlushed.Inc()
		}
	case errors.Is(terr, dbc.ErrUnknownMessage):
		// Counted below when the decoder hits the same miss.
	default:
		// Sources are individually ordered, but two sources sharing a
		// channel can interleave into an already-closed window.
		monitoring.FramesLateWindow.WithLabelValues(f.SourceID).Inc()
		monitoring.Logf("pipeline: quality: %v", terr)
	}

	sig, err := p.decoder.Decode(f.Raw, f.SourceID)
	if err != nil {
		var trunc *canbus.TruncatedFrameError
		switch {
		case errors.Is(err, dbc.ErrUnknownMessage):
			p.counters.Unknown++
			monitoring.FramesUnknown.WithLabelValues(f.SourceID).Inc()
		case errors.As(err, &trunc):
			p.counters.Truncated++
			monitoring.FramesTruncated.WithLabelValues(f.SourceID).Inc()
		default:
			monitoring.Logf("pipeline: decode failed: %v", err)
		}
		return
	}

	p.counters.Decoded++
	monitoring.SignalsDecoded.WithLabelValues(f.SourceID).Inc()
	p.summ.Observe(sig)
	p.pending = append(p.pending, *sig)
}

// Flush pushes the buffered signals through aggregation and event
// detection, and persists everything accumulated since the last flush.
func (p *Pipeline) Flush() error {
	start := time.Now()
	defer func() {
		monitoring.FlushDuration.Observe(time.Since(start).Seconds())
	}()

	signals := p.pending
	p.pending = nil
	windows := p.windows
	p.windows = nil

	samples := p.agg.Aggregate(signals)

	var detected []events.Event
	for _, s := range samples {
		ev, err := p.det.Observe(s)
		if err != nil {
			// The aggregator emits per-source buckets in order, so
			// this only trips when a poisoned source slipped through.
			monitoring.Logf("pipeline: event detection: %v", err)
			continue
		}
		if ev != nil {
			detected = append(detected, *ev)
			p.counters.Events++
			monitoring.EventsDetected.WithLabelValues(ev.SourceID, ev.EventType).Inc()
		}
	}

	if p.store == nil {
		return nil
	}

	if err := p.store.RecordSignals(signals); err != nil {
		return fmt.Errorf("persist signals: %w", err)
	}
	if err := p.store.RecordQualityWindows(windows); err != nil {
		return fmt.Errorf("persist quality windows: %w", err)
	}
	if err := p.store.RecordSamples(samples); err != nil {
		return fmt.Errorf("persist samples: %w", err)
	}
	if err := p.store.RecordEvents(detected); err != nil {
		return fmt.Errorf("persist events: %w", err)
	}
	if err := p.store.UpsertVehicleStats(p.summ.Summaries()); err != nil {
		return fmt.Errorf("persist vehicle stats: %w", err)
	}
	if err := p.store.UpdateIngestRunCounters(p.runID,
		p.counters.Ingested, p.counters.Unknown, p.counters.Truncated); err != nil {
		return fmt.Errorf("persist run counters: %w", err)
	}
	return nil
}

// finish drains the quality tracker, runs a final flush and closes the
// run record. Per-source ordering errors become the returned error.
func (p *Pipeline) finish() error {
	remaining := p.tracker.FlushAll()
	p.windows = append(p.windows, remaining...)
	for range remaining {
		monitoring.WindowsFlushed.Inc()
	}

	flushErr := p.Flush()

	if p.store != nil {
		finishedAt := float64(p.clock.Now().UnixNano()) / 1e9
		if err := p.store.FinishIngestRun(p.runID, finishedAt); err != nil {
			monitoring.Logf("pipeline: failed to close run record: %v", err)
		}
	}

	errs := []error{flushErr}
	for _, err := range p.failed {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
