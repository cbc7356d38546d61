package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/motion.report/internal/trace"
	"github.com/banshee-data/motion.report/internal/units"
)

// deviationChart renders an HTML page with the current step's guide path
// overlaid on its recorded traces, plus per-attempt deviation bars. This is
// a debugging/clinician view; the headset UI consumes the JSON endpoints.
// Query params:
//   - step (optional; defaults to the active step)
func (s *Server) deviationChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	step := s.engine.Snapshot().Step
	if name := r.URL.Query().Get("step"); name != "" {
		parsed, ok := stepByName(name)
		if !ok {
			http.Error(w, fmt.Sprintf("Unknown step %q", name), http.StatusBadRequest)
			return
		}
		step = parsed
	}

	attempts := s.engine.Recorder().Attempts(step)
	if len(attempts) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no completed attempts for step")
		return
	}

	page := components.NewPage()
	page.AddCharts(s.traceOverlay(step, attempts), s.deviationBars(step, attempts))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// traceOverlay plots the guide path and every recorded trace of a step in
// the horizontal (X/Y) plane.
func (s *Server) traceOverlay(step trace.Step, attempts []*trace.TraceAttempt) *charts.Scatter {
	guidePts := make([]opts.ScatterData, 0, 256)
	for _, row := range s.engine.StepExportRows(step) {
		if row.PathType != trace.PathTypeGuide {
			continue
		}
		guidePts = append(guidePts, opts.ScatterData{Value: []interface{}{row.X, row.Y}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trace Overlay", Theme: "dark", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Guide vs Traces: %s", step),
			Subtitle: fmt.Sprintf("attempts=%d", len(attempts)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("guide", guidePts,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))

	for _, attempt := range attempts {
		pts := make([]opts.ScatterData, 0, len(attempt.Points))
		for _, p := range attempt.Points {
			pts = append(pts, opts.ScatterData{Value: []interface{}{p.Position.X, p.Position.Y}})
		}
		scatter.AddSeries(fmt.Sprintf("attempt %d", attempt.AttemptNumber), pts,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}
	return scatter
}

// deviationBars charts each attempt's max and mean deviation from the
// chord, in the server's display units.
func (s *Server) deviationBars(step trace.Step, attempts []*trace.TraceAttempt) *charts.Bar {
	x := make([]string, 0, len(attempts))
	maxDevs := make([]opts.BarData, 0, len(attempts))
	avgDevs := make([]opts.BarData, 0, len(attempts))
	for _, attempt := range attempts {
		x = append(x, fmt.Sprintf("attempt %d", attempt.AttemptNumber))
		maxDevs = append(maxDevs, opts.BarData{Value: units.ConvertDistance(attempt.MaxDeviation, s.units)})
		avgDevs = append(avgDevs, opts.BarData{Value: units.ConvertDistance(attempt.AverageDeviation, s.units)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Deviation from chord: %s", step),
			Subtitle: fmt.Sprintf("units=%s", s.units),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("max", maxDevs,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("mean", avgDevs)
	return bar
}
