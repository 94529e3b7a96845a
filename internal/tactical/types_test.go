package tactical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointGeometry(t *testing.T) {
	t.Parallel()

	p := Point{X: 3, Y: 4}
	assert.Equal(t, 5.0, p.Norm())
	assert.Equal(t, 5.0, p.Dist(Point{}))
	assert.Equal(t, Point{X: 1.5, Y: 2}, p.Mid(Point{}))
	assert.Equal(t, Point{X: 2, Y: 3}, p.Sub(Point{X: 1, Y: 1}))
	assert.True(t, p.IsFinite())
	assert.False(t, Point{X: math.NaN()}.IsFinite())
	assert.False(t, Point{Y: math.Inf(1)}.IsFinite())
	assert.Equal(t, "(3.00, 4.00)", p.String())
}

func TestZoneRadiiValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		radii   ZoneRadii
		wantErr bool
	}{
		{"normal", ZoneRadii{5, 10, 12}, false},
		{"small", ZoneRadii{5, 6, 7}, false},
		{"zero safe", ZoneRadii{0, 6, 7}, true},
		{"alert inside safe", ZoneRadii{5, 5, 7}, true},
		{"predict inside alert", ZoneRadii{5, 8, 7}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.radii.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultZonePresets(t *testing.T) {
	t.Parallel()

	presets := DefaultZonePresets()
	assert.Equal(t, 12.0, presets[PresetNormal].Max())
	assert.Equal(t, 7.0, presets[PresetSmall].Max())
	for name, r := range presets {
		assert.NoError(t, r.Validate(), name)
	}
}
