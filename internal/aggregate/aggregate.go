// Package aggregate fuses decoded signals from different message types into
// one sample per fixed time bucket. Each message type populates a disjoint
// subset of fields, so a bucket's sample is the coalescing of everything
// that landed in it.
package aggregate

import (
	"math"
	"sort"

	"github.com/banshee-data/canbus.report/internal/canbus"
)

// Bucket lengths in seconds. The dashboard's 100ms aggregation view and its
// 1s "latest signals" view are the same operation at different lengths.
const (
	DefaultBucketSeconds = 0.1
	LatestBucketSeconds  = 1.0
)

// Sample is one fused record per (source, bucket). Fields are pointers
// because a bucket only carries the fields some frame actually populated;
// nil means "no signal of that kind landed here", while zero values are
// real measurements.
type Sample struct {
	BucketStart   float64
	SpeedKmh      *float64
	RPM           *float64
	ThrottlePct   *float64
	BrakePressure *float64
	BrakeActive   *bool
	SteeringAngle *float64
	SourceID      string
}

// Aggregator buckets decoded signals on a fixed timestamp grid. Within a
// bucket the last value by original timestamp wins for each field, ties
// broken by arrival order. This is the explicit, deterministic replacement
// for the MAX()-over-nulls column fusion the warehouse pipeline used: the
// two coincide while message types populate disjoint fields, but last-wins
// stays correct if they ever overlap.
type Aggregator struct {
	bucketLen float64
}

func New(bucketLen float64) *Aggregator {
	if bucketLen <= 0 {
		bucketLen = DefaultBucketSeconds
	}
	return &Aggregator{bucketLen: bucketLen}
}

// BucketLen returns the bucket length in seconds.
func (a *Aggregator) BucketLen() float64 { return a.bucketLen }

// BucketStart aligns a timestamp onto the aggregation grid.
func (a *Aggregator) BucketStart(ts float64) float64 {
	return math.Floor(ts/a.bucketLen) * a.bucketLen
}

type groupKey struct {
	source string
	bucket float64
}

// fieldState tracks which timestamp last wrote each sample field so
// last-by-timestamp can be enforced per field, not per record.
type fieldState struct {
	sample  *Sample
	fieldTS map[string]float64
}

// Aggregate fuses a batch of decoded signals into samples. Buckets with no
// contributing signals are simply absent from the output. The result is
// sorted by (source, bucket start).
func (a *Aggregator) Aggregate(signals []canbus.DecodedSignal) []Sample {
	groups := make(map[groupKey]*fieldState)

	for i := range signals {
		sig := &signals[i]
		k := groupKey{source: sig.SourceID, bucket: a.BucketStart(sig.Timestamp)}
		st, ok := groups[k]
		if !ok {
			st = &fieldState{
				sample:  &Sample{BucketStart: k.bucket, SourceID: sig.SourceID},
				fieldTS: make(map[string]float64),
			}
			groups[k] = st
		}
		for name, v := range sig.Fields {
			st.setFloat(name, v, sig.Timestamp)
		}
		for name, v := range sig.BoolFields {
			st.setBool(name, v, sig.Timestamp)
		}
	}

	out := make([]Sample, 0, len(groups))
	for _, st := range groups {
		out = append(out, *st.sample)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].BucketStart < out[j].BucketStart
	})
	return out
}

// setFloat applies the last-by-timestamp rule: an equal timestamp also wins,
// which is what gives later arrivals the tie.
func (st *fieldState) setFloat(name string, v, ts float64) {
	last, seen := st.fieldTS[name]
	if seen && ts < last {
		return
	}
	st.fieldTS[name] = ts

	switch name {
	case "speed_kmh":
		st.sample.SpeedKmh = &v
	case "rpm":
		st.sample.RPM = &v
	case "throttle_pct":
		st.sample.ThrottlePct = &v
	case "brake_pressure":
		st.sample.BrakePressure = &v
	case "steering_angle":
		st.sample.SteeringAngle = &v
	}
	// Fields outside the dashboard schema are decoded but not fused.
}

func (st *fieldState) setBool(name string, v bool, ts float64) {
	last, seen := st.fieldTS[name]
	if seen && ts < last {
		return
	}
	st.fieldTS[name] = ts

	if name == "brake_active" {
		st.sample.BrakeActive = &v
	}
}
