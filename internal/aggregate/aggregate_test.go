package aggregate

import (
	"testing"

	"github.com/banshee-data/canbus.report/internal/canbus"
)

func speedSignal(ts float64, source string, speed float64) canbus.DecodedSignal {
	return canbus.DecodedSignal{
		Timestamp:     ts,
		ArbitrationID: 0x100,
		MessageName:   "VehicleSpeed",
		Fields:        map[string]float64{"speed_kmh": speed},
		SourceID:      source,
	}
}

func brakeSignal(ts float64, source string, pressure float64, active bool) canbus.DecodedSignal {
	return canbus.DecodedSignal{
		Timestamp:     ts,
		ArbitrationID: 0x102,
		MessageName:   "BrakeData",
		Fields:        map[string]float64{"brake_pressure": pressure},
		BoolFields:    map[string]bool{"brake_active": active},
		SourceID:      source,
	}
}

func TestDisjointMessageTypesFuse(t *testing.T) {
	a := New(0.1)

	samples := a.Aggregate([]canbus.DecodedSignal{
		speedSignal(10.02, "s1", 80),
		brakeSignal(10.07, "s1", 55, true),
	})

	if len(samples) != 1 {
		t.Fatalf("expected one fused bucket, got %d", len(samples))
	}
	s := samples[0]
	if s.BucketStart != 10.0 {
		t.Errorf("bucket start: got %v, want 10.0", s.BucketStart)
	}
	if s.SpeedKmh == nil || *s.SpeedKmh != 80 {
		t.Errorf("speed: got %v", s.SpeedKmh)
	}
	if s.BrakePressure == nil || *s.BrakePressure != 55 {
		t.Errorf("brake pressure: got %v", s.BrakePressure)
	}
	if s.BrakeActive == nil || !*s.BrakeActive {
		t.Errorf("brake active: got %v", s.BrakeActive)
	}
	if s.RPM != nil || s.SteeringAngle != nil {
		t.Error("fields with no contributing signal must stay nil")
	}
}

func TestLastByTimestampWins(t *testing.T) {
	a := New(0.1)

	samples := a.Aggregate([]canbus.DecodedSignal{
		speedSignal(10.08, "s1", 82), // latest timestamp, listed first
		speedSignal(10.01, "s1", 80),
		speedSignal(10.05, "s1", 81),
	})

	if len(samples) != 1 {
		t.Fatalf("expected one bucket, got %d", len(samples))
	}
	if *samples[0].SpeedKmh != 82 {
		t.Errorf("expected last-by-timestamp value 82, got %v", *samples[0].SpeedKmh)
	}
}

func TestTimestampTieGoesToArrivalOrder(t *testing.T) {
	a := New(0.1)

	samples := a.Aggregate([]canbus.DecodedSignal{
		speedSignal(10.05, "s1", 80),
		speedSignal(10.05, "s1", 81), // same timestamp, arrives later
	})

	if *samples[0].SpeedKmh != 81 {
		t.Errorf("expected later arrival to win the tie, got %v", *samples[0].SpeedKmh)
	}
}

func TestSourcesDoNotMix(t *testing.T) {
	a := New(0.1)

	samples := a.Aggregate([]canbus.DecodedSignal{
		speedSignal(10.02, "s1", 80),
		speedSignal(10.03, "s2", 40),
	})

	if len(samples) != 2 {
		t.Fatalf("expected two buckets (one per source), got %d", len(samples))
	}
	if samples[0].SourceID != "s1" || *samples[0].SpeedKmh != 80 {
		t.Errorf("s1 sample wrong: %+v", samples[0])
	}
	if samples[1].SourceID != "s2" || *samples[1].SpeedKmh != 40 {
		t.Errorf("s2 sample wrong: %+v", samples[1])
	}
}

func TestEmptyBucketsNotEmitted(t *testing.T) {
	a := New(0.1)

	samples := a.Aggregate([]canbus.DecodedSignal{
		speedSignal(10.0, "s1", 80),
		speedSignal(10.95, "s1", 81), // 8 empty buckets between the two
	})

	if len(samples) != 2 {
		t.Errorf("expected 2 buckets, got %d", len(samples))
	}
}

func TestParameterizedBucketLength(t *testing.T) {
	// The 1s "latest signals" view is the same operation at 1s buckets.
	a := New(LatestBucketSeconds)

	samples := a.Aggregate([]canbus.DecodedSignal{
		speedSignal(10.02, "s1", 80),
		speedSignal(10.95, "s1", 81),
		brakeSignal(10.40, "s1", 12, false),
	})

	if len(samples) != 1 {
		t.Fatalf("expected one 1s bucket, got %d", len(samples))
	}
	s := samples[0]
	if s.BucketStart != 10.0 {
		t.Errorf("bucket start: got %v", s.BucketStart)
	}
	if *s.SpeedKmh != 81 {
		t.Errorf("expected last speed 81, got %v", *s.SpeedKmh)
	}
	if *s.BrakePressure != 12 || *s.BrakeActive {
		t.Errorf("brake fields wrong: %+v", s)
	}
}

func TestZeroIsARealValue(t *testing.T) {
	a := New(0.1)

	samples := a.Aggregate([]canbus.DecodedSignal{
		speedSignal(10.0, "s1", 0),
	})

	if samples[0].SpeedKmh == nil || *samples[0].SpeedKmh != 0 {
		t.Errorf("zero speed must survive as a set field, got %v", samples[0].SpeedKmh)
	}
}
