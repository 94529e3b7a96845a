package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/tactical/internal/httputil"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/version"
)

// circleSteps is the number of points drawn per zone boundary.
const circleSteps = 90

// AttachAdminRoutes mounts live status values and the track chart under
// the mux's /debug/ tree.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KV("Build", version.String())
	debug.KVFunc("Zone preset", func() any {
		name, r := s.ctl.Preset()
		return fmt.Sprintf("%s (safe %.1f, alert %.1f, predict %.1f %s)", name, r.Safe, r.Alert, r.Predict, s.units)
	})
	debug.KVFunc("Processing enabled", func() any { return s.ctl.ProcessingEnabled() })
	debug.KVFunc("Safe-origin filter", func() any { return s.ctl.SafeOriginFilter() })
	debug.KVFunc("Active tracks", func() any { return len(s.ctl.Snapshot(true).Tracks) })
	debug.KVFunc("Ticks", func() any { return s.ctl.Stats().Ticks })
	debug.KVFunc("Alerts raised", func() any { return s.ctl.Stats().Alerts })
	debug.HandleFunc("tactical", "Live track and zone chart", s.handleTrackChart)
}

func circleData(r float64) []opts.ScatterData {
	out := make([]opts.ScatterData, 0, circleSteps)
	for i := 0; i < circleSteps; i++ {
		a := 2 * math.Pi * float64(i) / circleSteps
		out = append(out, opts.ScatterData{Value: []interface{}{r * math.Cos(a), r * math.Sin(a)}})
	}
	return out
}

// handleTrackChart renders the zone boundaries, each track's history and
// its current position as an HTML scatter chart.
func (s *Server) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	snap := s.ctl.Snapshot(queryBool(r, "all"))
	radii := snap.Radii
	pad := radii.Predict * 1.2
	if pad <= 0 {
		pad = 15
	}

	var trails, heads []opts.ScatterData
	var crossings []opts.ScatterData
	for _, tr := range snap.Tracks {
		for _, p := range tr.History {
			trails = append(trails, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
		}
		heads = append(heads, opts.ScatterData{
			Name:  fmt.Sprintf("track %d", tr.ID),
			Value: []interface{}{tr.Position.X, tr.Position.Y},
		})
		if tr.Crossing != nil {
			crossings = append(crossings, opts.ScatterData{
				Name:  fmt.Sprintf("track %d crossing", tr.ID),
				Value: []interface{}{tr.Crossing.X, tr.Crossing.Y},
			})
		}
		pad = math.Max(pad, farthest(tr.History)*1.1)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tactical Tracks", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Active Tracks", Subtitle: fmt.Sprintf("preset=%s tracks=%d units=%s", snap.Preset, len(snap.Tracks), s.units)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("safe", circleData(radii.Safe), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("alert", circleData(radii.Alert), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("predict", circleData(radii.Predict), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("history", trails, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	scatter.AddSeries("tracks", heads, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	scatter.AddSeries("crossings", crossings, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func farthest(pts []tactical.Point) float64 {
	var d float64
	for _, p := range pts {
		d = math.Max(d, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	return d
}
