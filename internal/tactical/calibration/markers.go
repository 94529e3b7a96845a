package calibration

import (
	"math"

	"github.com/banshee-data/tactical/internal/tactical"
)

// RequiredMarkers is the number of marker centroids a calibration needs.
const RequiredMarkers = 6

// sideAngle is the angle between the centre line and the side line.
const sideAngle = math.Pi / 3

// Side says which side of the centre line a camera's side markers lie on.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// MarkerLayout returns the ground positions of the six markers for the
// given zone radii: the centre line at (0, d), then the side line at
// (±d·sin60°, d·cos60°), each ordered safe, alert, predict.
func MarkerLayout(radii tactical.ZoneRadii, side Side) []Vec3 {
	dists := []float64{radii.Safe, radii.Alert, radii.Predict}
	sign := 1.0
	if side == SideLeft {
		sign = -1
	}
	out := make([]Vec3, 0, RequiredMarkers)
	for _, d := range dists {
		out = append(out, Vec3{X: 0, Y: d})
	}
	for _, d := range dists {
		out = append(out, Vec3{X: sign * d * math.Sin(sideAngle), Y: d * math.Cos(sideAngle)})
	}
	return out
}

// InferSide picks the marker layout from the pixel order of the markers:
// if the first centre marker is left of the last side marker in the image,
// the side line is on the camera's right.
func InferSide(points []tactical.Point) Side {
	if points[0].X < points[RequiredMarkers-1].X {
		return SideRight
	}
	return SideLeft
}
