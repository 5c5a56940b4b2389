package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/canbus.report/internal/aggregate"
	"github.com/banshee-data/canbus.report/internal/db"
	"github.com/banshee-data/canbus.report/internal/httputil"
)

func (m *Monitor) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

// chartSamples pulls the sample window the chart endpoints share. An
// optional source query parameter narrows to one vehicle.
func (m *Monitor) chartSamples(r *http.Request) ([]aggregate.Sample, error) {
	limit := defaultChartWindow
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100000 {
			limit = parsed
		}
	}
	return m.db.SamplesByRange(db.SampleQuery{
		SourceID: r.URL.Query().Get("source"),
		Limit:    limit,
	})
}

// handleSpeedChart renders an interactive line chart of speed and RPM over
// time, one series per source.
func (m *Monitor) handleSpeedChart(w http.ResponseWriter, r *http.Request) {
	samples, err := m.chartSamples(r)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("query error: %v", err))
		return
	}
	if len(samples) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no samples recorded yet")
		return
	}

	// One speed series per source over a shared time axis.
	bySource := map[string]map[float64]*float64{}
	var ticks []float64
	seen := map[float64]bool{}
	for i := range samples {
		s := samples[i]
		if bySource[s.SourceID] == nil {
			bySource[s.SourceID] = map[float64]*float64{}
		}
		bySource[s.SourceID][s.BucketStart] = s.SpeedKmh
		if !seen[s.BucketStart] {
			seen[s.BucketStart] = true
			ticks = append(ticks, s.BucketStart)
		}
	}
	sort.Float64s(ticks)

	x := make([]string, len(ticks))
	for i, ts := range ticks {
		x[i] = time.Unix(int64(ts), 0).UTC().Format("15:04:05")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Vehicle Speed", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Vehicle Speed", Subtitle: fmt.Sprintf("samples=%d sources=%d", len(samples), len(bySource))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x)

	var sources []string
	for src := range bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		data := make([]opts.LineData, len(ticks))
		for i, ts := range ticks {
			if v := bySource[src][ts]; v != nil {
				data[i] = opts.LineData{Value: *v}
			} else {
				data[i] = opts.LineData{Value: nil}
			}
		}
		line.AddSeries(src, data)
	}

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleEventChart renders a bar chart of event counts by type.
func (m *Monitor) handleEventChart(w http.ResponseWriter, r *http.Request) {
	counts, err := m.db.EventCountsByType()
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("query error: %v", err))
		return
	}
	if len(counts) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no events recorded yet")
		return
	}

	var types []string
	for typ := range counts {
		types = append(types, typ)
	}
	sort.Strings(types)

	y := make([]opts.BarData, len(types))
	for i, typ := range types {
		y[i] = opts.BarData{Value: counts[typ]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Driving Events", Subtitle: time.Now().UTC().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(types).
		AddSeries("events", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
