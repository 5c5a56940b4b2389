package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/canbus.report/internal/aggregate"
	"github.com/banshee-data/canbus.report/internal/db"
)

// SampleAPI controls the JSON shape of aggregated samples. Without it the
// response would expose the internal sample struct with untagged fields.
type SampleAPI struct {
	BucketStart   float64  `json:"bucket_start"`
	SourceID      string   `json:"source_id"`
	SpeedKmh      *float64 `json:"speed_kmh"`
	RPM           *float64 `json:"rpm"`
	ThrottlePct   *float64 `json:"throttle_pct"`
	BrakePressure *float64 `json:"brake_pressure"`
	BrakeActive   *bool    `json:"brake_active"`
	SteeringAngle *float64 `json:"steering_angle"`
}

func (s *Server) sampleToAPI(sample aggregate.Sample) SampleAPI {
	return SampleAPI{
		BucketStart:   sample.BucketStart,
		SourceID:      sample.SourceID,
		SpeedKmh:      s.convertSpeedPtr(sample.SpeedKmh),
		RPM:           sample.RPM,
		ThrottlePct:   sample.ThrottlePct,
		BrakePressure: sample.BrakePressure,
		BrakeActive:   sample.BrakeActive,
		SteeringAngle: sample.SteeringAngle,
	}
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	start, end, source, limit, err := parseTimeRange(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = 1000
	}

	samples, err := s.db.SamplesByRange(db.SampleQuery{
		StartTime: start,
		EndTime:   end,
		SourceID:  source,
		Limit:     limit,
	})
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}

	apiSamples := make([]SampleAPI, len(samples))
	for i, sample := range samples {
		apiSamples[i] = s.sampleToAPI(sample)
	}

	if err := json.NewEncoder(w).Encode(apiSamples); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write samples")
		return
	}
}

// latestSamples returns the most recent aggregated sample for each source,
// the "current state" view a dashboard polls.
func (s *Server) latestSamples(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	samples, err := s.db.LatestSamples()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve latest samples: %v", err))
		return
	}

	apiSamples := make([]SampleAPI, len(samples))
	for i, sample := range samples {
		apiSamples[i] = s.sampleToAPI(sample)
	}

	if err := json.NewEncoder(w).Encode(apiSamples); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write latest samples")
		return
	}
}

// latestSignals returns one coalesced sample per source, rebuilt from the
// decoded signals in that source's newest 1s bucket. Same aggregation rule
// as the 100ms view, run at the latest-view bucket length, so fields from
// different message types inside the second fuse into one record.
func (s *Server) latestSignals(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	bucketLen := s.cfg.GetLatestBucketSeconds()
	sigs, err := s.db.LatestSignalBuckets(bucketLen)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve latest signals: %v", err))
		return
	}

	samples := aggregate.New(bucketLen).Aggregate(sigs)

	apiSamples := make([]SampleAPI, len(samples))
	for i, sample := range samples {
		apiSamples[i] = s.sampleToAPI(sample)
	}

	if err := json.NewEncoder(w).Encode(apiSamples); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write latest signals")
		return
	}
}
