package calibration

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tactical/internal/tactical"
)

var normalRadii = tactical.ZoneRadii{Safe: 5, Alert: 10, Predict: 12}

func testIntrinsics(distorted bool) Intrinsics {
	intr := Intrinsics{Matrix: Mat3{800, 0, 640, 0, 800, 360, 0, 0, 1}}
	if distorted {
		intr.Distortion = []float64{-0.05, 0.01, 0.001, -0.0005, 0}
	}
	return intr
}

func testPose() Pose {
	return LookAt(Vec3{X: 0, Y: -3, Z: 4}, Vec3{X: 0, Y: 8, Z: 0})
}

// markerPixels projects the marker layout through a known camera.
func markerPixels(t *testing.T, pose Pose, intr Intrinsics, radii tactical.ZoneRadii, side Side) []tactical.Point {
	t.Helper()
	rec := Record{Intrinsics: intr, Pose: pose}
	var px []tactical.Point
	for _, m := range MarkerLayout(radii, side) {
		p, err := rec.Project(m)
		require.NoError(t, err)
		px = append(px, p)
	}
	return px
}

func assertPoseNear(t *testing.T, want, got Pose, tol float64) {
	t.Helper()
	for i := range want.Rotation {
		assert.InDelta(t, want.Rotation[i], got.Rotation[i], tol, "R[%d]", i)
	}
	assert.InDelta(t, want.Translation.X, got.Translation.X, tol, "t.x")
	assert.InDelta(t, want.Translation.Y, got.Translation.Y, tol, "t.y")
	assert.InDelta(t, want.Translation.Z, got.Translation.Z, tol, "t.z")
}

func TestCalibrateRecoversPose(t *testing.T) {
	t.Parallel()

	for _, side := range []Side{SideRight, SideLeft} {
		for _, distorted := range []bool{false, true} {
			side, distorted := side, distorted
			name := string(side)
			if distorted {
				name += "/distorted"
			}
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				intr := testIntrinsics(distorted)
				want := testPose()
				px := markerPixels(t, want, intr, normalRadii, side)

				eng := NewEngine("Cam0", intr, normalRadii)
				require.NoError(t, eng.Calibrate(px))

				rec := eng.Record()
				assert.True(t, rec.Valid)
				assert.Equal(t, side, rec.Side)
				assertPoseNear(t, want, rec.Pose, 1e-6)
				assert.Less(t, rec.RMSE, 1e-4)
				assert.Equal(t, QualityExcellent, rec.Quality())
				assert.Equal(t, px, rec.ImagePoints)
				assert.Equal(t, MarkerLayout(normalRadii, side), rec.ObjectPoints)
			})
		}
	}
}

func TestBackProjectRoundTrip(t *testing.T) {
	t.Parallel()

	for _, distorted := range []bool{false, true} {
		rec := Record{Camera: "Cam0", Intrinsics: testIntrinsics(distorted), Pose: testPose(), Valid: true}
		for x := -6.0; x <= 6.0; x += 1.5 {
			for y := 2.0; y <= 14.0; y += 1.5 {
				px, err := rec.Project(Vec3{X: x, Y: y})
				require.NoError(t, err)
				got, err := rec.BackProject(px)
				require.NoError(t, err)
				assert.InDelta(t, x, got.X, 1e-6, "x for (%g,%g) distorted=%v", x, y, distorted)
				assert.InDelta(t, y, got.Y, 1e-6, "y for (%g,%g) distorted=%v", x, y, distorted)
			}
		}
	}
}

func TestBackProjectAboveHorizon(t *testing.T) {
	t.Parallel()

	rec := Record{Intrinsics: testIntrinsics(false), Pose: testPose(), Valid: true}
	// The top of the image looks above the horizon for a camera pitched
	// down by about 20 degrees with a 48 degree vertical field of view.
	_, err := rec.BackProject(tactical.Point{X: 640, Y: -2000})
	assert.ErrorIs(t, err, ErrNoGroundIntersection)
}

func TestBackProjectUncalibrated(t *testing.T) {
	t.Parallel()

	eng := NewEngine("Cam1", testIntrinsics(false), normalRadii)
	_, err := eng.BackProject(tactical.Point{X: 640, Y: 360})
	assert.ErrorIs(t, err, ErrNotCalibrated)
	assert.False(t, eng.Status().Calibrated)
	assert.Equal(t, QualityUnknown, eng.Status().Quality)
}

func TestCalibrateInsufficientPointsKeepsPriorState(t *testing.T) {
	t.Parallel()

	intr := testIntrinsics(false)
	px := markerPixels(t, testPose(), intr, normalRadii, SideRight)
	eng := NewEngine("Cam0", intr, normalRadii)
	require.NoError(t, eng.Calibrate(px))
	before := eng.Record()

	err := eng.Calibrate(px[:5])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientPoints), "got %v", err)

	after := eng.Record()
	assert.False(t, after.Valid)
	assert.Equal(t, before.Pose, after.Pose)
	assert.Equal(t, before.ImagePoints, after.ImagePoints)

	status := eng.Status()
	assert.False(t, status.Calibrated)
	assert.Contains(t, status.LastError, "got 5 marker points")

	_, err = eng.BackProject(px[0])
	assert.ErrorIs(t, err, ErrNotCalibrated)

	// Recalibrating recovers.
	require.NoError(t, eng.Calibrate(px))
	assert.True(t, eng.Valid())
	assert.Empty(t, eng.Status().LastError)
}

func TestCalibrateDegenerateGeometry(t *testing.T) {
	t.Parallel()

	eng := NewEngine("Cam0", testIntrinsics(false), normalRadii)
	same := make([]tactical.Point, RequiredMarkers)
	for i := range same {
		same[i] = tactical.Point{X: 640, Y: 360}
	}
	err := eng.Calibrate(same)
	assert.ErrorIs(t, err, ErrSolveFailed)
	assert.False(t, eng.Valid())
}

func TestCalibrateRejectsBadIntrinsics(t *testing.T) {
	t.Parallel()

	eng := NewEngine("Cam0", Intrinsics{}, normalRadii)
	px := markerPixels(t, testPose(), testIntrinsics(false), normalRadii, SideRight)
	assert.ErrorIs(t, eng.Calibrate(px), ErrSolveFailed)
}

func TestSetZoneRadiiResolvesFromLastPoints(t *testing.T) {
	t.Parallel()

	intr := testIntrinsics(false)
	pose := testPose()
	px := markerPixels(t, pose, intr, normalRadii, SideRight)
	eng := NewEngine("Cam0", intr, normalRadii)
	require.NoError(t, eng.Calibrate(px))

	// Doubling every radius is a uniform scaling of the world, so the same
	// pixels are explained by the same rotation and a doubled translation.
	doubled := tactical.ZoneRadii{Safe: 10, Alert: 20, Predict: 24}
	require.NoError(t, eng.SetZoneRadii(doubled))

	rec := eng.Record()
	want := Pose{Rotation: pose.Rotation, Translation: pose.Translation.Scale(2)}
	assertPoseNear(t, want, rec.Pose, 1e-6)
	assert.Equal(t, MarkerLayout(doubled, SideRight), rec.ObjectPoints)
}

func TestSetZoneRadiiBeforeCalibration(t *testing.T) {
	t.Parallel()

	eng := NewEngine("Cam0", testIntrinsics(false), normalRadii)
	assert.NoError(t, eng.SetZoneRadii(tactical.ZoneRadii{Safe: 5, Alert: 6, Predict: 7}))
	assert.False(t, eng.Valid())
}

func TestRestore(t *testing.T) {
	t.Parallel()

	saved := Record{
		Camera:       "ignored",
		Intrinsics:   testIntrinsics(true),
		Pose:         testPose(),
		Valid:        true,
		Side:         SideLeft,
		RMSE:         0.2,
		CalibratedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	eng := NewEngine("Cam1", testIntrinsics(false), normalRadii)
	require.NoError(t, eng.Restore(saved))

	rec := eng.Record()
	assert.Equal(t, "Cam1", rec.Camera)
	assert.True(t, rec.Valid)
	assert.Equal(t, saved.Intrinsics, rec.Intrinsics)
	status := eng.Status()
	assert.Equal(t, SideLeft, status.Side)
	assert.Equal(t, QualityExcellent, status.Quality)

	assert.Error(t, eng.Restore(Record{}))
}

func TestMarkerLayout(t *testing.T) {
	t.Parallel()

	right := MarkerLayout(normalRadii, SideRight)
	require.Len(t, right, RequiredMarkers)
	assert.Equal(t, Vec3{X: 0, Y: 5}, right[0])
	assert.Equal(t, Vec3{X: 0, Y: 12}, right[2])
	assert.InDelta(t, 5*math.Sqrt(3)/2, right[3].X, 1e-12)
	assert.InDelta(t, 2.5, right[3].Y, 1e-12)
	assert.InDelta(t, 6, right[5].Y, 1e-12)

	left := MarkerLayout(normalRadii, SideLeft)
	for i := range right {
		assert.InDelta(t, -right[i].X, left[i].X, 1e-12)
		assert.Equal(t, right[i].Y, left[i].Y)
	}
}

func TestInferSide(t *testing.T) {
	t.Parallel()

	pts := make([]tactical.Point, RequiredMarkers)
	pts[0] = tactical.Point{X: 100}
	pts[5] = tactical.Point{X: 500}
	assert.Equal(t, SideRight, InferSide(pts))
	pts[5] = tactical.Point{X: 50}
	assert.Equal(t, SideLeft, InferSide(pts))
	pts[5] = tactical.Point{X: 100}
	assert.Equal(t, SideLeft, InferSide(pts))
}

func TestRodriguesRoundTrip(t *testing.T) {
	t.Parallel()

	vectors := []Vec3{
		{},
		{X: 1e-10},
		{X: 0.3, Y: -0.2, Z: 0.1},
		{Z: math.Pi / 2},
		{X: 1, Y: 1, Z: 1},
		Vec3{X: 0, Y: 1, Z: 0}.Scale(math.Pi - 1e-8),
	}
	for _, v := range vectors {
		R := Rodrigues(v)
		back := RotationVector(R)
		R2 := Rodrigues(back)
		for i := range R {
			assert.InDelta(t, R[i], R2[i], 1e-6, "vector %v element %d", v, i)
		}
	}
}

func TestLookAtIsRotation(t *testing.T) {
	t.Parallel()

	p := testPose()
	R := p.Rotation
	assert.InDelta(t, 1, mat3Det(R), 1e-12)
	center := p.Center()
	assert.InDelta(t, 0, center.X, 1e-12)
	assert.InDelta(t, -3, center.Y, 1e-12)
	assert.InDelta(t, 4, center.Z, 1e-12)
}

func mat3Det(m Mat3) float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) - m[1]*(m[3]*m[8]-m[5]*m[6]) + m[2]*(m[3]*m[7]-m[4]*m[6])
}

func TestGradeReprojection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rmse float64
		want Quality
	}{
		{0.1, QualityExcellent},
		{1.0, QualityGood},
		{2.0, QualityFair},
		{10, QualityPoor},
		{math.NaN(), QualityUnknown},
		{-1, QualityUnknown},
	}
	for _, tt := range tests {
		if got := GradeReprojection(tt.rmse); got != tt.want {
			t.Errorf("GradeReprojection(%v) = %s, want %s", tt.rmse, got, tt.want)
		}
	}
}

func TestParseIntrinsics(t *testing.T) {
	t.Parallel()

	matrix := "# camera matrix\n8.0e+02 0 640\n0, 800, 360\n0 0 1\n"
	dist := "[-0.05 0.01 0.001 -0.0005 0]\n"
	intr, err := ParseIntrinsics(strings.NewReader(matrix), strings.NewReader(dist))
	require.NoError(t, err)
	assert.Equal(t, testIntrinsics(true), intr)

	_, err = ParseIntrinsics(strings.NewReader("1 2 3"), nil)
	assert.ErrorContains(t, err, "expected 9 values")

	_, err = ParseIntrinsics(strings.NewReader("800 0 640 0 800 360 0 0 x"), nil)
	assert.ErrorContains(t, err, "line 1")

	_, err = ParseIntrinsics(strings.NewReader("0 0 640 0 800 360 0 0 1"), nil)
	assert.ErrorContains(t, err, "focal lengths")
}
