// Package stats computes per-day, per-source driving summaries from
// decoded signals.
package stats

import (
	"sort"
	"time"

	"github.com/banshee-data/canbus.report/internal/canbus"
)

// SpeedSamplePeriodHours is the nominal period of the vehicle speed
// message expressed in hours. Distance is accumulated as
// speed_kmh * SpeedSamplePeriodHours per decoded speed sample, a
// Riemann sum over the nominal 20 ms grid rather than true
// integration over the observed timestamps.
const SpeedSamplePeriodHours = 0.02 / 3600.0

// DailyStats summarizes one (date, source) group.
type DailyStats struct {
	Date           string   `json:"date"`
	SourceID       string   `json:"source_id"`
	AvgSpeedKmh    *float64 `json:"avg_speed_kmh"`
	MaxSpeedKmh    *float64 `json:"max_speed_kmh"`
	AvgRPM         *float64 `json:"avg_rpm"`
	MaxRPM         *float64 `json:"max_rpm"`
	DistanceKm     float64  `json:"distance_km"`
	SampleCount    int64    `json:"sample_count"`
	FirstTimestamp float64  `json:"first_timestamp"`
	LastTimestamp  float64  `json:"last_timestamp"`
}

type groupKey struct {
	date   string
	source string
}

type accumulator struct {
	speedSum   float64
	speedCount int64
	speedMax   float64
	rpmSum     float64
	rpmCount   int64
	rpmMax     float64
	distanceKm float64
	count      int64
	firstTS    float64
	lastTS     float64
}

// Summarizer folds decoded signals into per-day rollups. Dates are
// derived from the signal timestamp in the configured location, so a
// drive that crosses local midnight splits into two rows.
type Summarizer struct {
	groups map[groupKey]*accumulator
	loc    *time.Location
}

// New returns a Summarizer that buckets days in UTC.
func New() *Summarizer {
	return NewInLocation(time.UTC)
}

// NewInLocation returns a Summarizer that buckets days in loc. A nil
// location falls back to UTC.
func NewInLocation(loc *time.Location) *Summarizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Summarizer{groups: make(map[groupKey]*accumulator), loc: loc}
}

// Observe folds one decoded signal into its (date, source) group.
func (s *Summarizer) Observe(sig *canbus.DecodedSignal) {
	key := groupKey{date: s.dateOf(sig.Timestamp), source: sig.SourceID}
	acc, ok := s.groups[key]
	if !ok {
		acc = &accumulator{firstTS: sig.Timestamp, lastTS: sig.Timestamp}
		s.groups[key] = acc
	}
	acc.count++
	if sig.Timestamp < acc.firstTS {
		acc.firstTS = sig.Timestamp
	}
	if sig.Timestamp > acc.lastTS {
		acc.lastTS = sig.Timestamp
	}
	if speed, ok := sig.Fields["speed_kmh"]; ok {
		acc.speedSum += speed
		acc.speedCount++
		if acc.speedCount == 1 || speed > acc.speedMax {
			acc.speedMax = speed
		}
		acc.distanceKm += speed * SpeedSamplePeriodHours
	}
	if rpm, ok := sig.Fields["rpm"]; ok {
		acc.rpmSum += rpm
		acc.rpmCount++
		if acc.rpmCount == 1 || rpm > acc.rpmMax {
			acc.rpmMax = rpm
		}
	}
}

// Summaries returns the current rollups sorted by (date, source).
// The summarizer keeps accumulating after the call.
func (s *Summarizer) Summaries() []DailyStats {
	out := make([]DailyStats, 0, len(s.groups))
	for key, acc := range s.groups {
		st := DailyStats{
			Date:           key.date,
			SourceID:       key.source,
			DistanceKm:     acc.distanceKm,
			SampleCount:    acc.count,
			FirstTimestamp: acc.firstTS,
			LastTimestamp:  acc.lastTS,
		}
		if acc.speedCount > 0 {
			avg := acc.speedSum / float64(acc.speedCount)
			max := acc.speedMax
			st.AvgSpeedKmh = &avg
			st.MaxSpeedKmh = &max
		}
		if acc.rpmCount > 0 {
			avg := acc.rpmSum / float64(acc.rpmCount)
			max := acc.rpmMax
			st.AvgRPM = &avg
			st.MaxRPM = &max
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

// Reset clears all accumulated groups.
func (s *Summarizer) Reset() {
	s.groups = make(map[groupKey]*accumulator)
}

func (s *Summarizer) dateOf(ts float64) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).In(s.loc).Format("2006-01-02")
}
