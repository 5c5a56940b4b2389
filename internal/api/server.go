package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/canbus.report/internal/canmux"
	"github.com/banshee-data/canbus.report/internal/config"
	"github.com/banshee-data/canbus.report/internal/db"
	"github.com/banshee-data/canbus.report/internal/httputil"
	"github.com/banshee-data/canbus.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

func (s *Server) convertSpeedPtr(speed *float64) *float64 {
	if speed == nil {
		return nil
	}
	converted := units.ConvertSpeed(*speed, s.units)
	return &converted
}

type Server struct {
	m     canmux.MuxInterface
	db    *db.DB
	units string
	cfg   *config.TuningConfig
}

func NewServer(m canmux.MuxInterface, db *db.DB, units string, cfg *config.TuningConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		m:     m,
		db:    db,
		units: units,
		cfg:   cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/api/signals", s.listSignals)
	mux.HandleFunc("/api/samples", s.listSamples)
	mux.HandleFunc("/api/samples/latest", s.latestSamples)
	mux.HandleFunc("/api/signals/latest", s.latestSignals)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/quality", s.showQuality)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stats/summary", s.showStatsSummary)
	mux.HandleFunc("/api/stats/export", s.exportStats)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if !canmux.CommandAllowed(command) {
		http.Error(w, "Command not allowed", http.StatusForbidden)
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

// parseTimeRange reads the optional start/end/source/limit query parameters
// shared by the range endpoints. start and end are unix seconds; zero means
// unbounded on that side.
func parseTimeRange(r *http.Request) (start, end float64, source string, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		start, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, 0, "", 0, fmt.Errorf("invalid 'start' parameter")
		}
	}
	if v := q.Get("end"); v != "" {
		end, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, 0, "", 0, fmt.Errorf("invalid 'end' parameter")
		}
	}
	source = q.Get("source")
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, "", 0, fmt.Errorf("invalid 'limit' parameter")
		}
	}
	return start, end, source, limit, nil
}

func (s *Server) listSignals(w http.ResponseWriter, r *http.Request) {
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

	signals, err := s.db.SignalsByRange(db.SignalQuery{
		StartTime: start,
		EndTime:   end,
		SourceID:  source,
		Limit:     limit,
	})
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve signals: %v", err))
		return
	}

	for i := range signals {
		signals[i].SpeedKmh = s.convertSpeedPtr(signals[i].SpeedKmh)
	}

	if err := json.NewEncoder(w).Encode(signals); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write signals")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	response := map[string]interface{}{
		"units":                  s.units,
		"accel_threshold_kmh_s":  s.cfg.GetAccelThresholdKmhS(),
		"steering_threshold_deg": s.cfg.GetSteeringThresholdDeg(),
		"bucket_seconds":         s.cfg.GetBucketSeconds(),
		"latest_bucket_seconds":  s.cfg.GetLatestBucketSeconds(),
		"quality_window_seconds": s.cfg.GetQualityWindowSeconds(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
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

	events, err := s.db.EventsByRange(db.EventQuery{
		StartTime: start,
		EndTime:   end,
		SourceID:  source,
		EventType: r.URL.Query().Get("type"),
		Limit:     limit,
	})
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}

	for i := range events {
		events[i].SpeedKmh = s.convertSpeedPtr(events[i].SpeedKmh)
	}

	if err := json.NewEncoder(w).Encode(events); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write events")
		return
	}
}
