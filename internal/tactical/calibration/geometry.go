package calibration

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec3 is a point or direction in world or camera space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3        { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3        { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3   { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64     { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Norm() float64          { return math.Sqrt(v.Dot(v)) }
func (v Vec3) slice() []float64       { return []float64{v.X, v.Y, v.Z} }
func vec3(s []float64) Vec3           { return Vec3{s[0], s[1], s[2]} }
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Unit returns v scaled to length 1. The zero vector is returned unchanged.
func (v Vec3) Unit() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// Mat3 is a row-major 3×3 matrix.
type Mat3 [9]float64

// Identity3 returns the 3×3 identity.
func Identity3() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// T returns the transpose of m.
func (m Mat3) T() Mat3 {
	return Mat3{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}
}

// Dense returns m as a gonum matrix.
func (m Mat3) Dense() *mat.Dense {
	return mat.NewDense(3, 3, append([]float64(nil), m[:]...))
}

func mat3FromDense(d mat.Matrix) Mat3 {
	var m Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r*3+c] = d.At(r, c)
		}
	}
	return m
}

// Pose is a world-to-camera rigid transform: Pc = R·Pw + t.
type Pose struct {
	Rotation    Mat3 `json:"rotation"`
	Translation Vec3 `json:"translation"`
}

// Apply transforms a world point into camera space.
func (p Pose) Apply(w Vec3) Vec3 {
	return p.Rotation.MulVec(w).Add(p.Translation)
}

// Center returns the camera position in world coordinates, -Rᵀt.
func (p Pose) Center() Vec3 {
	return p.Rotation.T().MulVec(p.Translation).Scale(-1)
}

// LookAt builds the pose of a camera at eye looking towards target with
// world +Z up. Camera axes are x right, y down, z forward.
func LookAt(eye, target Vec3) Pose {
	f := target.Sub(eye).Unit()
	r := f.Cross(Vec3{0, 0, 1}).Unit()
	d := f.Cross(r)
	R := Mat3{r.X, r.Y, r.Z, d.X, d.Y, d.Z, f.X, f.Y, f.Z}
	return Pose{Rotation: R, Translation: R.MulVec(eye).Scale(-1)}
}

// Rodrigues converts an axis-angle rotation vector to a rotation matrix.
func Rodrigues(r Vec3) Mat3 {
	theta := r.Norm()
	if theta < 1e-12 {
		return Mat3{1, -r.Z, r.Y, r.Z, 1, -r.X, -r.Y, r.X, 1}
	}
	k := r.Scale(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return Mat3{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}
}

// RotationVector is the inverse of Rodrigues.
func RotationVector(m Mat3) Vec3 {
	cosTheta := math.Max(-1, math.Min(1, (m[0]+m[4]+m[8]-1)/2))
	theta := math.Acos(cosTheta)
	skew := Vec3{m[7] - m[5], m[2] - m[6], m[3] - m[1]}

	switch {
	case theta < 1e-9:
		return skew.Scale(0.5)
	case math.Pi-theta < 1e-6:
		// Near pi the skew part vanishes; recover the axis from R = 2kkᵀ - I.
		diag := Vec3{(m[0] + 1) / 2, (m[4] + 1) / 2, (m[8] + 1) / 2}
		var k Vec3
		switch {
		case diag.X >= diag.Y && diag.X >= diag.Z:
			k.X = math.Sqrt(diag.X)
			k.Y = (m[1] + m[3]) / (4 * k.X)
			k.Z = (m[2] + m[6]) / (4 * k.X)
		case diag.Y >= diag.Z:
			k.Y = math.Sqrt(diag.Y)
			k.X = (m[1] + m[3]) / (4 * k.Y)
			k.Z = (m[5] + m[7]) / (4 * k.Y)
		default:
			k.Z = math.Sqrt(diag.Z)
			k.X = (m[2] + m[6]) / (4 * k.Z)
			k.Y = (m[5] + m[7]) / (4 * k.Z)
		}
		return k.Unit().Scale(theta)
	default:
		return skew.Scale(theta / (2 * math.Sin(theta)))
	}
}
