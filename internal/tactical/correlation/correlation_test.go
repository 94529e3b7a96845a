package correlation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
)

func candidates(pts ...tactical.Point) []tactical.ValidatedPosition {
	out := make([]tactical.ValidatedPosition, len(pts))
	for i, p := range pts {
		out[i] = tactical.ValidatedPosition{Position: p, CameraID: "Cam" + string(rune('0'+i%2))}
	}
	return out
}

var approx = cmpopts.EquateApprox(0, 1e-12)

func TestMidpointMerge(t *testing.T) {
	t.Parallel()

	m := MidpointMerge{Radius: 0.5}
	tests := []struct {
		name string
		in   []tactical.ValidatedPosition
		want []tactical.Point
	}{
		{
			name: "close pair collapses to midpoint",
			in:   candidates(tactical.Point{X: 1, Y: 8}, tactical.Point{X: 1.3, Y: 8.2}),
			want: []tactical.Point{{X: 1.15, Y: 8.1}},
		},
		{
			name: "distant pair stays distinct",
			in:   candidates(tactical.Point{X: 1, Y: 8}, tactical.Point{X: 2, Y: 8}),
			want: []tactical.Point{{X: 1, Y: 8}, {X: 2, Y: 8}},
		},
		{
			name: "exactly at radius stays distinct",
			in:   candidates(tactical.Point{X: 0, Y: 5}, tactical.Point{X: 0, Y: 5.5}),
			want: []tactical.Point{{X: 0, Y: 5}, {X: 0, Y: 5.5}},
		},
		{
			name: "third point compounds onto averaged point",
			in:   candidates(tactical.Point{X: 0, Y: 6}, tactical.Point{X: 0.4, Y: 6}, tactical.Point{X: 0.4, Y: 6}),
			want: []tactical.Point{{X: 0.3, Y: 6}},
		},
		{
			name: "empty",
			in:   nil,
			want: []tactical.Point{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Merge(tt.in)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMidpointMergeIsOrderDependent(t *testing.T) {
	t.Parallel()

	m := MidpointMerge{Radius: 0.5}
	a, b, c := tactical.Point{X: 0, Y: 6}, tactical.Point{X: 0.3, Y: 6}, tactical.Point{X: 0.6, Y: 6}

	// a absorbs b, and the 0.15 midpoint is close enough to absorb c.
	abc := m.Merge(candidates(a, b, c))
	// c and a are too far apart to merge, so b joins c and a stays separate.
	cab := m.Merge(candidates(c, a, b))

	assert.Len(t, abc, 1)
	assert.Len(t, cab, 2)
}

func TestCentroidCluster(t *testing.T) {
	t.Parallel()

	m := CentroidCluster{Radius: 0.5}
	got := m.Merge(candidates(
		tactical.Point{X: 0, Y: 6},
		tactical.Point{X: 0.4, Y: 6},
		tactical.Point{X: 0.4, Y: 6},
		tactical.Point{X: 3, Y: 9},
	))
	want := []tactical.Point{{X: 0.8 / 3, Y: 6}, {X: 3, Y: 9}}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestCentroidClusterPicksNearest(t *testing.T) {
	t.Parallel()

	m := CentroidCluster{Radius: 0.5}
	got := m.Merge(candidates(
		tactical.Point{X: 0, Y: 6},
		tactical.Point{X: 0.8, Y: 6},
		tactical.Point{X: 0.6, Y: 6},
	))
	require.Len(t, got, 2)
	assert.InDelta(t, 0, got[0].X, 1e-12)
	assert.InDelta(t, 0.7, got[1].X, 1e-12)
}

func TestNewStrategy(t *testing.T) {
	t.Parallel()

	s, err := FromTuning(config.EmptyTuningConfig())
	require.NoError(t, err)
	assert.Equal(t, MidpointMerge{Radius: 0.5}, s)

	s, err = NewStrategy(config.CorrelationCentroid, 0.75)
	require.NoError(t, err)
	assert.Equal(t, CentroidCluster{Radius: 0.75}, s)

	_, err = NewStrategy("dbscan", 1)
	assert.Error(t, err)
}
