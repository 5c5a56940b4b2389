package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/canbus.report/internal/db"
	"github.com/banshee-data/canbus.report/internal/quality"
)

// WindowAPI controls the JSON shape of a quality window.
type WindowAPI struct {
	WindowStart      float64 `json:"window_start"`
	WindowEnd        float64 `json:"window_end"`
	ArbitrationID    uint32  `json:"arbitration_id"`
	MessageName      string  `json:"message_name"`
	Channel          string  `json:"channel"`
	MessageCount     int64   `json:"message_count"`
	ExpectedCount    int64   `json:"expected_count"`
	ExpectedPeriodMs float64 `json:"expected_period_ms"`
	MissingRate      float64 `json:"missing_rate"`
}

func windowToAPI(win quality.Window) WindowAPI {
	return WindowAPI{
		WindowStart:      win.WindowStart,
		WindowEnd:        win.WindowEnd,
		ArbitrationID:    win.ArbitrationID,
		MessageName:      win.MessageName,
		Channel:          win.Channel,
		MessageCount:     win.MessageCount,
		ExpectedCount:    win.ExpectedCount,
		ExpectedPeriodMs: win.ExpectedPeriodMs,
		MissingRate:      win.MissingRate,
	}
}

// QualityResponse carries the per-window detail plus an overall health
// score, the average of (1 - missing_rate) across all recorded windows.
type QualityResponse struct {
	OverallHealth float64     `json:"overall_health"`
	WindowCount   int64       `json:"window_count"`
	Windows       []WindowAPI `json:"windows"`
}

func (s *Server) showQuality(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	start, end, _, limit, err := parseTimeRange(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = 1000
	}

	windows, err := s.db.QualityWindowsByRange(db.WindowQuery{
		StartTime: start,
		EndTime:   end,
		Limit:     limit,
	})
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve quality windows: %v", err))
		return
	}

	health, windowCount, err := s.db.OverallHealth()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to compute health score: %v", err))
		return
	}

	response := QualityResponse{
		OverallHealth: health,
		WindowCount:   windowCount,
		Windows:       make([]WindowAPI, len(windows)),
	}
	for i, win := range windows {
		response.Windows[i] = windowToAPI(win)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write quality windows")
		return
	}
}
