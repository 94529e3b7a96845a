package discrimination

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
)

// identityProjector treats pixel coordinates as ground coordinates.
type identityProjector struct{}

func (identityProjector) BackProject(px tactical.Point) (tactical.Point, error) { return px, nil }

type failingProjector struct{}

func (failingProjector) BackProject(tactical.Point) (tactical.Point, error) {
	return tactical.Point{}, errors.New("not calibrated")
}

var normalRadii = tactical.ZoneRadii{Safe: 5, Alert: 10, Predict: 12}

func defaultDiscriminator() *Discriminator {
	return New(ConfigFromTuning(config.EmptyTuningConfig()), normalRadii)
}

// plausibleArea returns an area at the centre of the size envelope.
func plausibleArea(d float64) float64 {
	return ConfigFromTuning(config.EmptyTuningConfig()).ExpectedArea(d)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	d := defaultDiscriminator()
	tests := []struct {
		name string
		blob tactical.Blob
		want Verdict
	}{
		{"plausible target on centre line", tactical.Blob{Centroid: tactical.Point{X: 0, Y: 8}, Area: plausibleArea(8)}, Accepted},
		{"area at lower bound", tactical.Blob{Centroid: tactical.Point{X: 0, Y: 8}, Area: 100}, RejectArea},
		{"area at upper bound", tactical.Blob{Centroid: tactical.Point{X: 0, Y: 8}, Area: 7500}, RejectArea},
		{"beyond max radius plus margin", tactical.Blob{Centroid: tactical.Point{X: 0, Y: 12.3}, Area: plausibleArea(12.3)}, RejectRange},
		{"within margin", tactical.Blob{Centroid: tactical.Point{X: 0, Y: 12.2}, Area: plausibleArea(12.2)}, Accepted},
		{"outside coverage wedge", tactical.Blob{Centroid: tactical.Point{X: 8, Y: 4}, Area: plausibleArea(math.Hypot(8, 4))}, RejectCoverage},
		{"inside coverage wedge", tactical.Blob{Centroid: tactical.Point{X: 4, Y: 8}, Area: plausibleArea(math.Hypot(4, 8))}, Accepted},
		{"too small for distance", tactical.Blob{Centroid: tactical.Point{X: 0, Y: 6}, Area: 0.3 * plausibleArea(6)}, RejectSizeModel},
		{"too large for distance", tactical.Blob{Centroid: tactical.Point{X: 0, Y: 6}, Area: 2 * plausibleArea(6)}, RejectSizeModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := d.Check(tt.blob, identityProjector{})
			assert.Equal(t, tt.want, got, "verdict %s", got)
		})
	}
}

func TestRangeRejectionIgnoresArea(t *testing.T) {
	t.Parallel()

	d := defaultDiscriminator()
	for _, area := range []float64{150, 500, 1000, 3000, 7000} {
		_, v := d.Check(tactical.Blob{Centroid: tactical.Point{X: 1, Y: 20}, Area: area}, identityProjector{})
		assert.Equal(t, RejectRange, v, "area %v", area)
	}
}

func TestProjectionFailureRejects(t *testing.T) {
	t.Parallel()

	d := defaultDiscriminator()
	_, v := d.Check(tactical.Blob{Centroid: tactical.Point{X: 0, Y: 8}, Area: plausibleArea(8)}, failingProjector{})
	assert.Equal(t, RejectProjection, v)
}

func TestCentroidOffset(t *testing.T) {
	t.Parallel()

	blob := tactical.Blob{Centroid: tactical.Point{X: 0, Y: 8}, Radius: 1, Area: plausibleArea(8)}
	tests := []struct {
		offset string
		wantY  float64
	}{
		{config.OffsetNone, 8},
		{config.OffsetTop, 7},
		{config.OffsetBottom, 9},
	}
	for _, tt := range tests {
		cfg := ConfigFromTuning(config.EmptyTuningConfig())
		cfg.Offset = tt.offset
		pos, _ := New(cfg, normalRadii).Check(blob, identityProjector{})
		assert.Equal(t, tt.wantY, pos.Y, tt.offset)
	}
}

func TestSetZoneRadiiChangesRange(t *testing.T) {
	t.Parallel()

	d := defaultDiscriminator()
	blob := tactical.Blob{Centroid: tactical.Point{X: 0, Y: 9}, Area: plausibleArea(9)}
	_, v := d.Check(blob, identityProjector{})
	require.Equal(t, Accepted, v)

	d.SetZoneRadii(tactical.ZoneRadii{Safe: 5, Alert: 6, Predict: 7})
	_, v = d.Check(blob, identityProjector{})
	assert.Equal(t, RejectRange, v)
}

func TestDiscriminatePreservesOrder(t *testing.T) {
	t.Parallel()

	d := defaultDiscriminator()
	blobs := []tactical.Blob{
		{Centroid: tactical.Point{X: 1, Y: 9}, Area: plausibleArea(math.Hypot(1, 9))},
		{Centroid: tactical.Point{X: 0, Y: 30}, Area: 500},
		{Centroid: tactical.Point{X: -1, Y: 6}, Area: plausibleArea(math.Hypot(1, 6))},
	}
	got := d.Discriminate("Cam0", blobs, identityProjector{})
	require.Len(t, got, 2)
	assert.Equal(t, tactical.ValidatedPosition{Position: tactical.Point{X: 1, Y: 9}, CameraID: "Cam0"}, got[0])
	assert.Equal(t, tactical.ValidatedPosition{Position: tactical.Point{X: -1, Y: 6}, CameraID: "Cam0"}, got[1])
}

func TestVerdictString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "size-model", RejectSizeModel.String())
	assert.Equal(t, "verdict(42)", Verdict(42).String())
}
