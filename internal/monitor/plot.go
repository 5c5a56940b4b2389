package monitor

import (
	"fmt"
	"net/http"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// handleSpeedPlot renders the recent speed history as a static PNG, one
// line per source. Useful for embedding in status pages where the echarts
// bundle is too heavy.
func (m *Monitor) handleSpeedPlot(w http.ResponseWriter, r *http.Request) {
	samples, err := m.chartSamples(r)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("query error: %v", err))
		return
	}
	if len(samples) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no samples recorded yet")
		return
	}

	p := plot.New()
	p.Title.Text = "Vehicle Speed"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Speed (km/h)"
	p.Add(plotter.NewGrid())

	bySource := map[string]plotter.XYs{}
	var t0 float64
	for i := range samples {
		s := samples[i]
		if s.SpeedKmh == nil {
			continue
		}
		if t0 == 0 || s.BucketStart < t0 {
			t0 = s.BucketStart
		}
		bySource[s.SourceID] = append(bySource[s.SourceID], plotter.XY{X: s.BucketStart, Y: *s.SpeedKmh})
	}

	var sources []string
	for src := range bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for i, src := range sources {
		pts := bySource[src]
		sort.Slice(pts, func(a, b int) bool { return pts[a].X < pts[b].X })
		for j := range pts {
			pts[j].X -= t0
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("plot error: %v", err))
			return
		}
		line.Color = plotColor(i)
		p.Add(line)
		p.Legend.Add(src, line)
	}

	wt, err := p.WriterTo(12*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		// Headers already sent; nothing useful to report to the client.
		return
	}
}
