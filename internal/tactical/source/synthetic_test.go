package source

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
)

func TestSyntheticGeneratorBackProjects(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewSyntheticGenerator(start, 1)
	ticks := g.Generate(5)
	require.Len(t, ticks, 5)

	first := ticks[0]
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, start, first.Time)
	require.Len(t, first.Frames, 2)

	for i, f := range first.Frames {
		cam := g.Cameras[i]
		require.Len(t, f.Markers, calibration.RequiredMarkers)
		eng := calibration.NewEngine(cam.Camera, cam.Intrinsics, g.Radii)
		require.NoError(t, eng.Calibrate(f.Markers))

		require.Len(t, f.Blobs, 1)
		got, err := eng.BackProject(f.Blobs[0].Centroid)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got.X, 1e-3)
		assert.InDelta(t, 14.0, got.Y, 1e-3)
	}

	// Markers only on the first tick by default; time advances per frame rate.
	assert.Empty(t, ticks[1].Frames[0].Markers)
	assert.Equal(t, start.Add(400*time.Millisecond), ticks[4].Time)
}

func TestSyntheticGeneratorMarkerEveryAndClutter(t *testing.T) {
	g := NewSyntheticGenerator(time.Unix(0, 0).UTC(), 7)
	g.MarkerEvery = 2
	g.ClutterProbability = 1
	g.Targets = nil

	ticks := g.Generate(3)
	assert.NotEmpty(t, ticks[0].Frames[0].Markers)
	assert.Empty(t, ticks[1].Frames[0].Markers)
	assert.NotEmpty(t, ticks[2].Frames[0].Markers)
	for _, f := range Frames(ticks) {
		require.Len(t, f.Blobs, 1)
		assert.Less(t, f.Blobs[0].Area, 25.0)
	}
}

func TestSyntheticRoundTripsThroughRecording(t *testing.T) {
	g := NewSyntheticGenerator(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), 3)
	g.Targets = append(g.Targets, SyntheticTarget{Start: tactical.Point{X: -2, Y: 9}, Velocity: tactical.Point{X: 0.5}})
	ticks := g.Generate(4)

	var buf bytes.Buffer
	require.NoError(t, WriteFrames(&buf, Frames(ticks)))
	frames, err := ReadFrames(&buf)
	require.NoError(t, err)
	got := GroupTicks(frames)
	require.Len(t, got, 4)
	for i := range got {
		assert.Equal(t, ticks[i].Seq, got[i].Seq)
		assert.Len(t, got[i].Frames, 2)
		assert.Len(t, got[i].Frames[0].Blobs, 2)
	}
}
