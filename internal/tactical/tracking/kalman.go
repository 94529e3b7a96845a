package tracking

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/tactical/internal/tactical"
)

// ErrNumericFailure is returned when a Kalman correction produces a
// non-finite state. The filter keeps its previous state.
var ErrNumericFailure = errors.New("kalman filter numeric failure")

// KalmanConfig parameterises the constant-velocity model.
type KalmanConfig struct {
	ProcessNoise     float64 // diagonal of Q
	MeasurementNoise float64 // diagonal of R
	TimeStep         float64 // Δt of the transition matrix
}

// KalmanState is the filtered position and velocity.
type KalmanState struct {
	Position tactical.Point
	Velocity tactical.Point
}

// KalmanFilter tracks state [x, y, vx, vy] from position-only measurements.
// It alternates Correct and Predict; statePre/errPre hold the prior for the
// next Correct, statePost/errPost the last corrected estimate.
type KalmanFilter struct {
	F, H, Q, R *mat.Dense

	statePre  *mat.VecDense
	statePost *mat.VecDense
	errPre    *mat.Dense
	errPost   *mat.Dense
}

func scaledIdentity(n int, s float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, s)
	}
	return d
}

// NewKalmanFilter seeds a filter at pos with zero velocity and identity
// error covariance.
func NewKalmanFilter(cfg KalmanConfig, pos tactical.Point) *KalmanFilter {
	dt := cfg.TimeStep
	x := mat.NewVecDense(4, []float64{pos.X, pos.Y, 0, 0})
	return &KalmanFilter{
		F: mat.NewDense(4, 4, []float64{
			1, 0, dt, 0,
			0, 1, 0, dt,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}),
		H: mat.NewDense(2, 4, []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
		}),
		Q:         scaledIdentity(4, cfg.ProcessNoise),
		R:         scaledIdentity(2, cfg.MeasurementNoise),
		statePre:  x,
		statePost: mat.VecDenseCopyOf(x),
		errPre:    scaledIdentity(4, 1),
		errPost:   scaledIdentity(4, 1),
	}
}

// Correct folds a position measurement into the prior.
func (kf *KalmanFilter) Correct(z tactical.Point) (KalmanState, error) {
	var hx mat.VecDense
	hx.MulVec(kf.H, kf.statePre)
	innovation := mat.NewVecDense(2, []float64{z.X - hx.AtVec(0), z.Y - hx.AtVec(1)})

	var pht, s, sInv, gain mat.Dense
	pht.Mul(kf.errPre, kf.H.T())
	s.Mul(kf.H, &pht)
	s.Add(&s, kf.R)
	if err := sInv.Inverse(&s); err != nil {
		return kf.State(), fmt.Errorf("%w: innovation covariance: %v", ErrNumericFailure, err)
	}
	gain.Mul(&pht, &sInv)

	var step, x mat.VecDense
	step.MulVec(&gain, innovation)
	x.AddVec(kf.statePre, &step)

	var kh, ikh, p mat.Dense
	kh.Mul(&gain, kf.H)
	ikh.Sub(scaledIdentity(4, 1), &kh)
	p.Mul(&ikh, kf.errPre)

	if !finiteVec(&x) || !finiteDense(&p) {
		return kf.State(), fmt.Errorf("%w: corrected state %v", ErrNumericFailure, x.RawVector().Data)
	}
	kf.statePost = &x
	kf.errPost = &p
	return kf.State(), nil
}

// Predict propagates the last corrected estimate one time step and returns
// the predicted position.
func (kf *KalmanFilter) Predict() tactical.Point {
	var x mat.VecDense
	x.MulVec(kf.F, kf.statePost)

	var fp, p mat.Dense
	fp.Mul(kf.F, kf.errPost)
	p.Mul(&fp, kf.F.T())
	p.Add(&p, kf.Q)

	kf.statePre = &x
	kf.errPre = &p
	return tactical.Point{X: x.AtVec(0), Y: x.AtVec(1)}
}

// State returns the last corrected estimate.
func (kf *KalmanFilter) State() KalmanState {
	x := kf.statePost
	return KalmanState{
		Position: tactical.Point{X: x.AtVec(0), Y: x.AtVec(1)},
		Velocity: tactical.Point{X: x.AtVec(2), Y: x.AtVec(3)},
	}
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if f := v.AtVec(i); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func finiteDense(d *mat.Dense) bool {
	r, c := d.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if f := d.At(i, j); math.IsNaN(f) || math.IsInf(f, 0) {
				return false
			}
		}
	}
	return true
}
