package report

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/tactical/tracking"
	"github.com/banshee-data/tactical/internal/tactical/zones"
)

func walkSnapshots() []pipeline.Snapshot {
	radii := tactical.ZoneRadii{Safe: 5, Alert: 10, Predict: 12}
	crossing := tactical.Point{X: 0, Y: 12}
	var snaps []pipeline.Snapshot
	for i := 0; i < 10; i++ {
		tr := tracking.Track{ID: 1, Position: tactical.Point{Y: 3 + float64(i)}, Updated: true}
		if i >= 5 {
			tr.InitialCrossing = &crossing
		}
		snaps = append(snaps, pipeline.Snapshot{Preset: "NORMAL", Radii: radii, Tracks: []tracking.Track{tr}})
	}
	// A coasting track does not extend its trail.
	snaps = append(snaps, pipeline.Snapshot{Preset: "NORMAL", Radii: radii, Tracks: []tracking.Track{
		{ID: 1, Position: tactical.Point{Y: 12}},
		{ID: 2, Position: tactical.Point{X: -4, Y: 1}, Updated: true},
	}})
	return snaps
}

func TestSummary(t *testing.T) {
	r := NewRecorder()
	assert.True(t, math.IsInf(r.Summary().ClosestApproach, 1))

	for _, s := range walkSnapshots() {
		r.Observe(s)
	}
	r.AddAlerts([]zones.Alert{
		{Kind: zones.KindEnteredAlert, Position: tactical.Point{Y: 5.2}},
		{Kind: zones.KindLeftAlert, Position: tactical.Point{Y: 10.1}},
	})

	s := r.Summary()
	assert.Equal(t, 11, s.Ticks)
	assert.Equal(t, "NORMAL", s.Preset)
	assert.Equal(t, 2, s.Tracks)
	assert.Equal(t, 1, s.Crossings)
	assert.Equal(t, map[zones.Kind]int{zones.KindEnteredAlert: 1, zones.KindLeftAlert: 1}, s.AlertsByKind)
	assert.InDelta(t, 3.0, s.ClosestApproach, 1e-9)
	assert.Len(t, r.trails[1], 10)
}

func TestWritePNG(t *testing.T) {
	r := NewRecorder()
	for _, s := range walkSnapshots() {
		r.Observe(s)
	}
	r.AddAlerts([]zones.Alert{{Kind: zones.KindEnteredAlert, Position: tactical.Point{Y: 5.2}}})

	var buf bytes.Buffer
	require.NoError(t, r.WritePNG(&buf, "session", 4*vg.Inch))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 100)
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestSavePNGEmptySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")
	require.NoError(t, NewRecorder().SavePNG(path, "empty", 3*vg.Inch))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestGenerateColors(t *testing.T) {
	assert.Nil(t, generateColors(0))
	cs := generateColors(3)
	require.Len(t, cs, 3)
	assert.NotEqual(t, cs[0], cs[1])
	assert.Equal(t, color.RGBA{R: 195, G: 34, B: 34, A: 255}, cs[0])
}
