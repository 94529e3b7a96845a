// Package report renders an offline picture of a tracking session: the
// zone boundaries, every track's trail, predicted crossings and the
// positions where alerts fired.
package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/tactical/zones"
)

// Recorder accumulates track trails and alerts across snapshots.
type Recorder struct {
	radii     tactical.ZoneRadii
	preset    string
	trails    map[int64][]tactical.Point
	crossings map[int64]tactical.Point
	alerts    []zones.Alert
	ticks     int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		trails:    make(map[int64][]tactical.Point),
		crossings: make(map[int64]tactical.Point),
	}
}

// Observe records the tracks in one snapshot. Only updated tracks extend
// their trail, so coasting tracks do not draw repeated points.
func (r *Recorder) Observe(snap pipeline.Snapshot) {
	r.ticks++
	r.radii = snap.Radii
	r.preset = snap.Preset
	for _, tr := range snap.Tracks {
		if _, seen := r.trails[tr.ID]; !seen || tr.Updated {
			r.trails[tr.ID] = append(r.trails[tr.ID], tr.Position)
		}
		if tr.InitialCrossing != nil {
			if _, ok := r.crossings[tr.ID]; !ok {
				r.crossings[tr.ID] = *tr.InitialCrossing
			}
		}
	}
}

// AddAlerts records alerts raised during the session.
func (r *Recorder) AddAlerts(alerts []zones.Alert) {
	r.alerts = append(r.alerts, alerts...)
}

// Summary is the numeric digest of a session.
type Summary struct {
	Ticks        int                `json:"ticks"`
	Preset       string             `json:"preset"`
	Radii        tactical.ZoneRadii `json:"radii"`
	Tracks       int                `json:"tracks"`
	Crossings    int                `json:"crossings"`
	AlertsByKind map[zones.Kind]int `json:"alerts_by_kind"`
	// ClosestApproach is the smallest distance from the origin any track
	// reached, or +Inf with no tracks.
	ClosestApproach float64 `json:"closest_approach"`
}

// Summary digests what has been recorded.
func (r *Recorder) Summary() Summary {
	s := Summary{
		Ticks:           r.ticks,
		Preset:          r.preset,
		Radii:           r.radii,
		Tracks:          len(r.trails),
		Crossings:       len(r.crossings),
		AlertsByKind:    make(map[zones.Kind]int),
		ClosestApproach: math.Inf(1),
	}
	for _, a := range r.alerts {
		s.AlertsByKind[a.Kind]++
	}
	for _, trail := range r.trails {
		for _, p := range trail {
			s.ClosestApproach = math.Min(s.ClosestApproach, p.Norm())
		}
	}
	return s
}

func (r *Recorder) trackIDs() []int64 {
	ids := make([]int64, 0, len(r.trails))
	for id := range r.trails {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func circle(radius float64) plotter.XYs {
	const steps = 180
	pts := make(plotter.XYs, steps+1)
	for i := 0; i <= steps; i++ {
		a := 2 * math.Pi * float64(i) / steps
		pts[i] = plotter.XY{X: radius * math.Cos(a), Y: radius * math.Sin(a)}
	}
	return pts
}

func toXYs(pts []tactical.Point) plotter.XYs {
	out := make(plotter.XYs, len(pts))
	for i, p := range pts {
		out[i] = plotter.XY{X: p.X, Y: p.Y}
	}
	return out
}

// Plot builds the session plot.
func (r *Recorder) Plot(title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Legend.Top = true

	zoneColors := []color.Color{
		color.RGBA{G: 160, A: 255},
		color.RGBA{R: 230, G: 160, A: 255},
		color.RGBA{R: 200, A: 255},
	}
	for i, z := range []struct {
		name string
		r    float64
	}{{"safe", r.radii.Safe}, {"alert", r.radii.Alert}, {"predict", r.radii.Predict}} {
		if z.r <= 0 {
			continue
		}
		line, err := plotter.NewLine(circle(z.r))
		if err != nil {
			return nil, err
		}
		line.Color = zoneColors[i]
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s %.1f", z.name, z.r), line)
	}

	ids := r.trackIDs()
	colors := generateColors(len(ids))
	for i, id := range ids {
		trail := r.trails[id]
		if len(trail) < 2 {
			sc, err := plotter.NewScatter(toXYs(trail))
			if err != nil {
				return nil, err
			}
			sc.GlyphStyle.Color = colors[i]
			p.Add(sc)
			continue
		}
		line, err := plotter.NewLine(toXYs(trail))
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("track %d", id), line)
	}

	if len(r.crossings) > 0 {
		pts := make([]tactical.Point, 0, len(r.crossings))
		for _, id := range ids {
			if c, ok := r.crossings[id]; ok {
				pts = append(pts, c)
			}
		}
		sc, err := plotter.NewScatter(toXYs(pts))
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("predicted crossing", sc)
	}

	if len(r.alerts) > 0 {
		pts := make([]tactical.Point, len(r.alerts))
		for i, a := range r.alerts {
			pts[i] = a.Position
		}
		sc, err := plotter.NewScatter(toXYs(pts))
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.TriangleGlyph{}
		sc.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add("alert", sc)
	}

	extent := math.Max(r.radii.Predict, 1) * 1.15
	for _, trail := range r.trails {
		for _, q := range trail {
			extent = math.Max(extent, math.Max(math.Abs(q.X), math.Abs(q.Y))*1.05)
		}
	}
	p.X.Min, p.X.Max = -extent, extent
	p.Y.Min, p.Y.Max = -extent, extent
	p.Add(plotter.NewGrid())
	return p, nil
}

// SavePNG writes the plot to path as a square image of side size.
func (r *Recorder) SavePNG(path, title string, size vg.Length) error {
	p, err := r.Plot(title)
	if err != nil {
		return err
	}
	return p.Save(size, size, path)
}

// WritePNG writes the plot as PNG to w.
func (r *Recorder) WritePNG(w io.Writer, title string, size vg.Length) error {
	p, err := r.Plot(title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// generateColors creates a palette of distinct colours for track trails.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
