package calibration

import (
	"fmt"
	"math"

	"github.com/banshee-data/tactical/internal/tactical"
)

// Intrinsics is the pinhole camera model: a 3×3 camera matrix and
// Brown-Conrady distortion coefficients (k1, k2, p1, p2[, k3]).
type Intrinsics struct {
	Matrix     Mat3      `json:"matrix"`
	Distortion []float64 `json:"distortion"`
}

// Validate checks the camera matrix has positive focal lengths and an
// affine last row, and that at most five distortion terms are given.
func (in Intrinsics) Validate() error {
	m := in.Matrix
	if !(m[0] > 0) || !(m[4] > 0) {
		return fmt.Errorf("focal lengths must be positive, got fx=%g fy=%g", m[0], m[4])
	}
	if m[3] != 0 || m[6] != 0 || m[7] != 0 || m[8] != 1 {
		return fmt.Errorf("camera matrix must be upper triangular with K[2][2]=1, got %v", m)
	}
	if len(in.Distortion) > 5 {
		return fmt.Errorf("expected at most 5 distortion coefficients, got %d", len(in.Distortion))
	}
	for _, v := range append(m[:], in.Distortion...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("intrinsics contain non-finite value")
		}
	}
	return nil
}

// Clone returns a deep copy.
func (in Intrinsics) Clone() Intrinsics {
	in.Distortion = append([]float64(nil), in.Distortion...)
	return in
}

func (in Intrinsics) coeff(i int) float64 {
	if i < len(in.Distortion) {
		return in.Distortion[i]
	}
	return 0
}

// distort maps ideal normalized coordinates to distorted ones.
func (in Intrinsics) distort(x, y float64) (float64, float64) {
	k1, k2, p1, p2, k3 := in.coeff(0), in.coeff(1), in.coeff(2), in.coeff(3), in.coeff(4)
	r2 := x*x + y*y
	radial := 1 + r2*(k1+r2*(k2+r2*k3))
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}

// undistort inverts distort by fixed-point iteration.
func (in Intrinsics) undistort(xd, yd float64) (float64, float64) {
	k1, k2, p1, p2, k3 := in.coeff(0), in.coeff(1), in.coeff(2), in.coeff(3), in.coeff(4)
	if k1 == 0 && k2 == 0 && p1 == 0 && p2 == 0 && k3 == 0 {
		return xd, yd
	}
	x, y := xd, yd
	for i := 0; i < 20; i++ {
		r2 := x*x + y*y
		radial := 1 + r2*(k1+r2*(k2+r2*k3))
		dx := 2*p1*x*y + p2*(r2+2*x*x)
		dy := p1*(r2+2*y*y) + 2*p2*x*y
		x = (xd - dx) / radial
		y = (yd - dy) / radial
	}
	return x, y
}

// Normalize maps a pixel to an undistorted ray direction (x, y, 1) in
// camera space.
func (in Intrinsics) Normalize(px tactical.Point) Vec3 {
	m := in.Matrix
	yd := (px.Y - m[5]) / m[4]
	xd := (px.X - m[2] - m[1]*yd) / m[0]
	x, y := in.undistort(xd, yd)
	return Vec3{x, y, 1}
}

// Pixel maps a camera-space point to distorted pixel coordinates.
// ok is false when the point is not in front of the camera.
func (in Intrinsics) Pixel(c Vec3) (tactical.Point, bool) {
	if c.Z <= 0 {
		return tactical.Point{}, false
	}
	xd, yd := in.distort(c.X/c.Z, c.Y/c.Z)
	m := in.Matrix
	return tactical.Point{
		X: m[0]*xd + m[1]*yd + m[2],
		Y: m[4]*yd + m[5],
	}, true
}
