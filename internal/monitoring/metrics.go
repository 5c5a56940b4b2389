package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline counters. Registered on the default registry so the
// /metrics handler picks them up without extra wiring.
var (
	FramesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canbus",
		Name:      "frames_ingested_total",
		Help:      "Raw frames read from a bus source.",
	}, []string{"source"})

	FramesUnknown = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canbus",
		Name:      "frames_unknown_total",
		Help:      "Frames dropped for an unrecognized arbitration id.",
	}, []string{"source"})

	FramesTruncated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canbus",
		Name:      "frames_truncated_total",
		Help:      "Frames dropped for a payload shorter than a signal needs.",
	}, []string{"source"})

	SignalsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canbus",
		Name:      "signals_decoded_total",
		Help:      "Successfully decoded signal records.",
	}, []string{"source"})

	EventsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canbus",
		Name:      "events_detected_total",
		Help:      "Driving events emitted by the detector.",
	}, []string{"source", "type"})

	FramesLateWindow = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canbus",
		Name:      "frames_late_window_total",
		Help:      "Frames not counted because their quality window had already closed.",
	}, []string{"source"})

	WindowsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "canbus",
		Name:      "quality_windows_flushed_total",
		Help:      "Quality windows closed and persisted.",
	})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "canbus",
		Name:      "flush_duration_seconds",
		Help:      "Wall time spent persisting one pipeline flush.",
		Buckets:   prometheus.DefBuckets,
	})
)

// MetricsHandler returns the HTTP handler serving the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
