// Package events scans fused sample sequences for abrupt kinematic
// changes and emits discrete driving events.
package events

import (
	"fmt"
	"math"

	"github.com/banshee-data/canbus.report/internal/aggregate"
)

// Event types, in detection priority order.
const (
	TypeHardBrake        = "hard_brake"
	TypeHardAcceleration = "hard_acceleration"
	TypeSharpTurn        = "sharp_turn"
)

// Default classification thresholds. Overridable per detector via
// Thresholds so the tuning config can change them at runtime.
const (
	DefaultAccelThresholdKmhS   = 35.0
	DefaultSteeringThresholdDeg = 20.0
)

// Thresholds holds the classification limits for one detector.
type Thresholds struct {
	// AccelKmhS bounds |acceleration| in km/h per second. Braking
	// beyond -AccelKmhS and acceleration beyond +AccelKmhS both fire.
	AccelKmhS float64
	// SteeringDeg bounds the absolute steering angle change between
	// two adjacent samples, in degrees.
	SteeringDeg float64
}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AccelKmhS:   DefaultAccelThresholdKmhS,
		SteeringDeg: DefaultSteeringThresholdDeg,
	}
}

// Event is one detected kinematic event, derived from two adjacent
// samples of the same source. Timestamp is the later sample's bucket.
type Event struct {
	Timestamp          float64  `json:"timestamp"`
	EventType          string   `json:"event_type"`
	SpeedKmh           *float64 `json:"speed_kmh"`
	AccelerationKmhS   *float64 `json:"acceleration_kmh_s"`
	SteeringAngle      *float64 `json:"steering_angle"`
	SteeringAngleDelta *float64 `json:"steering_angle_delta"`
	BrakePressure      *float64 `json:"brake_pressure"`
	SourceID           string   `json:"source_id"`
}

// UnorderedInputError reports a sample sequence whose timestamps went
// backwards within one source. Detection cannot continue for that
// source: the pairwise deltas would be nonsense.
type UnorderedInputError struct {
	SourceID string
	Previous float64
	Current  float64
}

func (e *UnorderedInputError) Error() string {
	return fmt.Sprintf("events: unordered input for source %q: sample at %.3f after %.3f",
		e.SourceID, e.Current, e.Previous)
}

// Detector folds over an ordered AggregatedSample sequence, holding
// only the previous sample per source. The time step between adjacent
// samples is the fixed bucket length, not wall-clock elapsed time,
// matching the fixed-grid aggregation upstream.
type Detector struct {
	bucketLen  float64
	thresholds Thresholds
	prev       map[string]aggregate.Sample
}

// New returns a Detector for samples produced at the given bucket
// length in seconds.
func New(bucketLen float64, th Thresholds) *Detector {
	return &Detector{
		bucketLen:  bucketLen,
		thresholds: th,
		prev:       make(map[string]aggregate.Sample),
	}
}

// Observe feeds one sample. It returns a non-nil Event when the pair
// formed with the source's previous sample crosses a threshold, and
// an *UnorderedInputError when the sample's bucket is earlier than
// the previous one for the same source. The error is fatal to that
// source: the offending sample is not retained as state.
func (d *Detector) Observe(s aggregate.Sample) (*Event, error) {
	prev, ok := d.prev[s.SourceID]
	if !ok {
		d.prev[s.SourceID] = s
		return nil, nil
	}
	if s.BucketStart < prev.BucketStart {
		return nil, &UnorderedInputError{
			SourceID: s.SourceID,
			Previous: prev.BucketStart,
			Current:  s.BucketStart,
		}
	}
	if s.BucketStart == prev.BucketStart {
		// Re-emission of the same bucket: a flush boundary splits a
		// bucket's fields across two partial samples, so union them
		// instead of forming a pair.
		d.prev[s.SourceID] = mergeSample(prev, s)
		return nil, nil
	}
	d.prev[s.SourceID] = s
	return d.classify(prev, s), nil
}

// mergeSample unions two partial emissions of the same bucket. The later
// emission's fields win where both are set, matching the last-wins rule
// the aggregator applies within one batch.
func mergeSample(prev, s aggregate.Sample) aggregate.Sample {
	if s.SpeedKmh == nil {
		s.SpeedKmh = prev.SpeedKmh
	}
	if s.RPM == nil {
		s.RPM = prev.RPM
	}
	if s.ThrottlePct == nil {
		s.ThrottlePct = prev.ThrottlePct
	}
	if s.BrakePressure == nil {
		s.BrakePressure = prev.BrakePressure
	}
	if s.BrakeActive == nil {
		s.BrakeActive = prev.BrakeActive
	}
	if s.SteeringAngle == nil {
		s.SteeringAngle = prev.SteeringAngle
	}
	return s
}

// Detect runs Observe over a whole ordered sequence and collects the
// events. Sources may be interleaved; ordering is checked per source.
func (d *Detector) Detect(samples []aggregate.Sample) ([]Event, error) {
	var out []Event
	for _, s := range samples {
		ev, err := d.Observe(s)
		if err != nil {
			return out, err
		}
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out, nil
}

// Reset drops all per-source previous-sample state.
func (d *Detector) Reset() {
	d.prev = make(map[string]aggregate.Sample)
}

// classify applies the priority-ordered rules to one adjacent pair.
// A field that is nil on either side skips its rule rather than
// contributing a bogus delta. At most one event per pair.
func (d *Detector) classify(prev, cur aggregate.Sample) *Event {
	var accel *float64
	if prev.SpeedKmh != nil && cur.SpeedKmh != nil {
		a := (*cur.SpeedKmh - *prev.SpeedKmh) / d.bucketLen
		accel = &a
	}
	var steerDelta *float64
	if prev.SteeringAngle != nil && cur.SteeringAngle != nil {
		sd := math.Abs(*cur.SteeringAngle - *prev.SteeringAngle)
		steerDelta = &sd
	}

	var eventType string
	switch {
	case accel != nil && *accel < -d.thresholds.AccelKmhS:
		eventType = TypeHardBrake
	case accel != nil && *accel > d.thresholds.AccelKmhS:
		eventType = TypeHardAcceleration
	case steerDelta != nil && *steerDelta > d.thresholds.SteeringDeg:
		eventType = TypeSharpTurn
	default:
		return nil
	}

	return &Event{
		Timestamp:          cur.BucketStart,
		EventType:          eventType,
		SpeedKmh:           cur.SpeedKmh,
		AccelerationKmhS:   accel,
		SteeringAngle:      cur.SteeringAngle,
		SteeringAngleDelta: steerDelta,
		BrakePressure:      cur.BrakePressure,
		SourceID:           cur.SourceID,
	}
}
