package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/canbus.report/internal/db"
	"github.com/banshee-data/canbus.report/internal/security"
)

// SpeedStats summarises the observed speed distribution over a time range.
// Percentiles come from the aggregated samples, not raw signals, so a chatty
// bus does not outweigh a quiet one.
type SpeedStats struct {
	SampleCount int      `json:"sample_count"`
	MaxSpeed    *float64 `json:"max_speed"`
	P50Speed    *float64 `json:"p50_speed"`
	P85Speed    *float64 `json:"p85_speed"`
	P98Speed    *float64 `json:"p98_speed"`
}

// StatsResponse is the payload of the stats endpoint.
type StatsResponse struct {
	Units       string           `json:"units"`
	Speed       SpeedStats       `json:"speed"`
	EventCounts map[string]int64 `json:"event_counts"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
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
		limit = 100000
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

	var speeds []float64
	for _, sample := range samples {
		if sample.SpeedKmh != nil {
			speeds = append(speeds, *sample.SpeedKmh)
		}
	}

	response := StatsResponse{
		Units: s.units,
		Speed: SpeedStats{SampleCount: len(speeds)},
	}

	if len(speeds) > 0 {
		sort.Float64s(speeds)
		maxSpeed := speeds[len(speeds)-1]
		p50 := stat.Quantile(0.50, stat.Empirical, speeds, nil)
		p85 := stat.Quantile(0.85, stat.Empirical, speeds, nil)
		p98 := stat.Quantile(0.98, stat.Empirical, speeds, nil)

		response.Speed.MaxSpeed = s.convertSpeedPtr(&maxSpeed)
		response.Speed.P50Speed = s.convertSpeedPtr(&p50)
		response.Speed.P85Speed = s.convertSpeedPtr(&p85)
		response.Speed.P98Speed = s.convertSpeedPtr(&p98)
	}

	counts, err := s.db.EventCountsByType()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve event counts: %v", err))
		return
	}
	response.EventCounts = counts

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
		return
	}
}

// StatsSummaryResponse joins the fleet-wide rollup with the per-day detail.
type StatsSummaryResponse struct {
	Summary *db.FleetSummary `json:"summary"`
	Daily   []DailyStatsAPI  `json:"daily"`
}

// DailyStatsAPI controls the JSON shape of one daily rollup row.
type DailyStatsAPI struct {
	Date           string   `json:"date"`
	SourceID       string   `json:"source_id"`
	AvgSpeedKmh    *float64 `json:"avg_speed"`
	MaxSpeedKmh    *float64 `json:"max_speed"`
	AvgRPM         *float64 `json:"avg_rpm"`
	MaxRPM         *float64 `json:"max_rpm"`
	DistanceKm     float64  `json:"distance_km"`
	SampleCount    int64    `json:"sample_count"`
	FirstTimestamp float64  `json:"first_timestamp"`
	LastTimestamp  float64  `json:"last_timestamp"`
}

func (s *Server) showStatsSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	summary, err := s.db.VehicleStatsSummary()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve summary: %v", err))
		return
	}
	summary.MaxSpeedKmh = s.convertSpeedPtr(summary.MaxSpeedKmh)
	summary.AvgSpeedKmh = s.convertSpeedPtr(summary.AvgSpeedKmh)

	daily, err := s.db.VehicleStatsByRange(db.StatsQuery{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		SourceID:  q.Get("source"),
	})
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve daily stats: %v", err))
		return
	}

	response := StatsSummaryResponse{
		Summary: summary,
		Daily:   make([]DailyStatsAPI, len(daily)),
	}
	for i, d := range daily {
		response.Daily[i] = DailyStatsAPI{
			Date:           d.Date,
			SourceID:       d.SourceID,
			AvgSpeedKmh:    s.convertSpeedPtr(d.AvgSpeedKmh),
			MaxSpeedKmh:    s.convertSpeedPtr(d.MaxSpeedKmh),
			AvgRPM:         d.AvgRPM,
			MaxRPM:         d.MaxRPM,
			DistanceKm:     d.DistanceKm,
			SampleCount:    d.SampleCount,
			FirstTimestamp: d.FirstTimestamp,
			LastTimestamp:  d.LastTimestamp,
		}
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats summary")
		return
	}
}

// exportStats serves the daily rollups as a CSV download so reports can
// be pulled into a spreadsheet without scripting against the JSON API.
func (s *Server) exportStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	daily, err := s.db.VehicleStatsByRange(db.StatsQuery{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		SourceID:  q.Get("source"),
	})
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve daily stats: %v", err))
		return
	}

	name := "daily-stats"
	if source := q.Get("source"); source != "" {
		// Source IDs come from the query string, so scrub them before
		// they end up in a filename.
		name = "daily-stats-" + security.SanitizeFilename(source)
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))

	cw := csv.NewWriter(w)
	record := []string{"date", "source_id", "avg_speed", "max_speed", "avg_rpm", "max_rpm", "distance_km", "sample_count"}
	if err := cw.Write(record); err != nil {
		return
	}
	for _, d := range daily {
		record = []string{
			d.Date,
			d.SourceID,
			formatSpeedField(s.convertSpeedPtr(d.AvgSpeedKmh)),
			formatSpeedField(s.convertSpeedPtr(d.MaxSpeedKmh)),
			formatSpeedField(d.AvgRPM),
			formatSpeedField(d.MaxRPM),
			strconv.FormatFloat(d.DistanceKm, 'f', 3, 64),
			strconv.FormatInt(d.SampleCount, 10),
		}
		if err := cw.Write(record); err != nil {
			return
		}
	}
	cw.Flush()
}

func formatSpeedField(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
