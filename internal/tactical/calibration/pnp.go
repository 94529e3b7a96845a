package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/tactical/internal/tactical"
)

// Sentinel errors returned by the solver and the engine.
var (
	ErrInsufficientPoints = errors.New("insufficient calibration points")
	ErrSolveFailed        = errors.New("calibration solve failed")
	ErrNotCalibrated      = errors.New("camera not calibrated")
)

// rankTolerance is the smallest accepted ratio between the second-smallest
// and largest singular values of the DLT system.
const rankTolerance = 1e-10

// behindCameraCost is the reprojection cost charged when a candidate pose
// puts a marker behind the camera.
const behindCameraCost = 1e12

// SolvePlanarPnP recovers the pose of a camera from at least four
// correspondences between ground points (Z = 0) and pixels.
//
// The linear estimate comes from the plane-to-image homography, computed
// by DLT on undistorted normalized coordinates and decomposed into R and t.
// It is then refined by minimising pixel reprojection error; the refined
// pose is kept only if it is strictly better.
func SolvePlanarPnP(object []Vec3, image []tactical.Point, intr Intrinsics) (Pose, error) {
	if len(object) != len(image) {
		return Pose{}, fmt.Errorf("%w: %d object points vs %d image points", ErrSolveFailed, len(object), len(image))
	}
	if len(object) < 4 {
		return Pose{}, fmt.Errorf("%w: need at least 4, got %d", ErrInsufficientPoints, len(object))
	}
	for i, p := range object {
		if math.Abs(p.Z) > 1e-9 {
			return Pose{}, fmt.Errorf("%w: object point %d is off the ground plane (z=%g)", ErrSolveFailed, i, p.Z)
		}
	}

	rays := make([]tactical.Point, len(image))
	for i, px := range image {
		r := intr.Normalize(px)
		rays[i] = tactical.Point{X: r.X, Y: r.Y}
	}
	ground := make([]tactical.Point, len(object))
	for i, p := range object {
		ground[i] = tactical.Point{X: p.X, Y: p.Y}
	}

	H, err := homography(ground, rays)
	if err != nil {
		return Pose{}, err
	}
	pose, err := decomposeHomography(H, ground)
	if err != nil {
		return Pose{}, err
	}

	initial := reprojectionSSE(pose, object, image, intr)
	if refined, cost, ok := refinePose(pose, object, image, intr); ok && cost < initial {
		tactical.Tracef("[Calibration] refinement reduced SSE %.6g -> %.6g", initial, cost)
		pose = refined
	}

	for i, p := range object {
		if pose.Apply(p).Z <= 0 {
			return Pose{}, fmt.Errorf("%w: marker %d behind camera", ErrSolveFailed, i)
		}
	}
	return pose, nil
}

// hartley returns the similarity that moves pts to zero mean and mean
// distance sqrt(2) from the origin.
func hartley(pts []tactical.Point) (Mat3, error) {
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	n := float64(len(pts))
	mx /= n
	my /= n
	var spread float64
	for _, p := range pts {
		spread += math.Hypot(p.X-mx, p.Y-my)
	}
	spread /= n
	if spread < 1e-12 {
		return Mat3{}, fmt.Errorf("%w: points are coincident", ErrSolveFailed)
	}
	s := math.Sqrt2 / spread
	return Mat3{s, 0, -s * mx, 0, s, -s * my, 0, 0, 1}, nil
}

func applyH(h Mat3, p tactical.Point) tactical.Point {
	v := h.MulVec(Vec3{p.X, p.Y, 1})
	return tactical.Point{X: v.X / v.Z, Y: v.Y / v.Z}
}

// homography solves dst ~ H·src by normalized DLT.
func homography(src, dst []tactical.Point) (Mat3, error) {
	Ts, err := hartley(src)
	if err != nil {
		return Mat3{}, err
	}
	Td, err := hartley(dst)
	if err != nil {
		return Mat3{}, err
	}

	n := len(src)
	A := mat.NewDense(2*n, 9, nil)
	for i := range src {
		s := applyH(Ts, src[i])
		d := applyH(Td, dst[i])
		A.SetRow(2*i, []float64{s.X, s.Y, 1, 0, 0, 0, -d.X * s.X, -d.X * s.Y, -d.X})
		A.SetRow(2*i+1, []float64{0, 0, 0, s.X, s.Y, 1, -d.Y * s.X, -d.Y * s.Y, -d.Y})
	}

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return Mat3{}, fmt.Errorf("%w: SVD of DLT system did not converge", ErrSolveFailed)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[7]/values[0] < rankTolerance {
		return Mat3{}, fmt.Errorf("%w: degenerate marker geometry (singular values %v)", ErrSolveFailed, values)
	}
	var V mat.Dense
	svd.VTo(&V)
	var hn Mat3
	for i := 0; i < 9; i++ {
		hn[i] = V.At(i, 8)
	}

	// H = Td⁻¹ · Hn · Ts
	var tdInv mat.Dense
	if err := tdInv.Inverse(Td.Dense()); err != nil {
		return Mat3{}, fmt.Errorf("%w: %v", ErrSolveFailed, err)
	}
	var tmp, H mat.Dense
	tmp.Mul(&tdInv, hn.Dense())
	H.Mul(&tmp, Ts.Dense())
	return mat3FromDense(&H), nil
}

// decomposeHomography splits H = λ·[r1 r2 t] into a proper rotation and a
// translation that places the ground points in front of the camera.
func decomposeHomography(H Mat3, ground []tactical.Point) (Pose, error) {
	h1 := Vec3{H[0], H[3], H[6]}
	h2 := Vec3{H[1], H[4], H[7]}
	h3 := Vec3{H[2], H[5], H[8]}

	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-12 {
		return Pose{}, fmt.Errorf("%w: degenerate homography", ErrSolveFailed)
	}
	lambda := 1 / norm

	// Depth of each ground point is λ·(third row of H)·(X, Y, 1).
	var depth float64
	for _, g := range ground {
		depth += H[6]*g.X + H[7]*g.Y + H[8]
	}
	if depth < 0 {
		lambda = -lambda
	}

	r1 := h1.Scale(lambda)
	r2 := h2.Scale(lambda)
	r3 := r1.Cross(r2)
	t := h3.Scale(lambda)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3.X,
		r1.Y, r2.Y, r3.Y,
		r1.Z, r2.Z, r3.Z,
	})
	R, err := nearestRotation(approx)
	if err != nil {
		return Pose{}, err
	}
	pose := Pose{Rotation: R, Translation: t}
	for _, v := range append(R[:], t.X, t.Y, t.Z) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Pose{}, fmt.Errorf("%w: non-finite pose", ErrSolveFailed)
		}
	}
	return pose, nil
}

// nearestRotation projects a 3×3 matrix onto SO(3) using R = U·Vᵀ.
func nearestRotation(m *mat.Dense) (Mat3, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return Mat3{}, fmt.Errorf("%w: SVD of rotation estimate did not converge", ErrSolveFailed)
	}
	var U, V, R mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)
	R.Mul(&U, V.T())
	if mat.Det(&R) < 0 {
		for i := 0; i < 3; i++ {
			U.Set(i, 2, -U.At(i, 2))
		}
		R.Mul(&U, V.T())
	}
	return mat3FromDense(&R), nil
}

// projectAll projects object points, reporting false if any lies behind
// the camera.
func projectAll(pose Pose, object []Vec3, intr Intrinsics) ([]tactical.Point, bool) {
	out := make([]tactical.Point, len(object))
	for i, p := range object {
		px, ok := intr.Pixel(pose.Apply(p))
		if !ok {
			return nil, false
		}
		out[i] = px
	}
	return out, true
}

// reprojectionSSE is the sum of squared pixel residuals.
func reprojectionSSE(pose Pose, object []Vec3, image []tactical.Point, intr Intrinsics) float64 {
	projected, ok := projectAll(pose, object, intr)
	if !ok {
		return behindCameraCost
	}
	residuals := make([]float64, 0, 2*len(image))
	for i, px := range projected {
		residuals = append(residuals, px.X-image[i].X, px.Y-image[i].Y)
	}
	return floats.Dot(residuals, residuals)
}

// ReprojectionRMSE returns the root-mean-square pixel distance between the
// projected object points and the observed image points.
func ReprojectionRMSE(pose Pose, object []Vec3, image []tactical.Point, intr Intrinsics) float64 {
	if len(object) == 0 {
		return math.NaN()
	}
	return math.Sqrt(reprojectionSSE(pose, object, image, intr) / float64(len(object)))
}

// refinePose runs Nelder-Mead over (rotation vector, translation).
func refinePose(initial Pose, object []Vec3, image []tactical.Point, intr Intrinsics) (Pose, float64, bool) {
	toPose := func(x []float64) Pose {
		return Pose{Rotation: Rodrigues(vec3(x[0:3])), Translation: vec3(x[3:6])}
	}
	x0 := append(RotationVector(initial.Rotation).slice(), initial.Translation.slice()...)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return reprojectionSSE(toPose(x), object, image, intr)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: 2000,
		FuncEvaluations: 10000,
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		tactical.Diagf("[Calibration] pose refinement stopped: %v", err)
		return Pose{}, 0, false
	}
	if result == nil || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return Pose{}, 0, false
	}
	return toPose(result.X), result.F, true
}
