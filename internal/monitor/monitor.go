// Package monitor serves debugging charts of recent telemetry: an
// interactive speed chart rendered with go-echarts and a static PNG
// rendered with gonum/plot. These are operator tools, not the public API.
package monitor

import (
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/canbus.report/internal/db"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// defaultChartWindow bounds how many aggregated samples a chart pulls.
const defaultChartWindow = 5000

type Monitor struct {
	db *db.DB
}

func NewMonitor(database *db.DB) *Monitor {
	return &Monitor{db: database}
}

// AttachDebugRoutes registers the chart endpoints under /debug/. Like the
// database admin routes, these are reachable only over localhost or
// Tailscale.
func (m *Monitor) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("speed-chart", "interactive speed/RPM chart of recent samples", m.handleSpeedChart)
	debug.HandleSilentFunc("speed-plot.png", m.handleSpeedPlot)
	debug.HandleFunc("event-chart", "daily driving event counts", m.handleEventChart)
}
