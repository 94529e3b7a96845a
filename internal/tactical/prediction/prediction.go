// Package prediction estimates where a track will cross the outer boundary
// circle by extrapolating a straight-line fit through its recent filtered
// positions.
package prediction

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
)

var (
	// ErrInsufficientHistory is returned when the window is shorter than
	// the configured minimum or its points do not spread enough to fit a
	// line.
	ErrInsufficientHistory = errors.New("insufficient history for prediction")
	// ErrNoIntersection is returned when the fitted line misses the
	// boundary circle.
	ErrNoIntersection = errors.New("fitted line does not reach boundary")
)

// Config holds prediction parameters.
type Config struct {
	MinHistory int // N_MIN: positions required before a fit is attempted
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{MinHistory: cfg.GetPredictionMinHistory()}
}

// minSpread is the smallest positional variance treated as movement.
const minSpread = 1e-12

// Crossing fits y = m·x + b through window by ordinary least squares and
// returns its intersection with the circle of the given radius about the
// origin. Of the two roots the one with positive y is preferred.
// A window whose x values do not vary is treated as the vertical line
// through their mean.
func Crossing(window []tactical.Point, radius float64, minHistory int) (tactical.Point, error) {
	if len(window) < minHistory || len(window) < 2 {
		return tactical.Point{}, fmt.Errorf("%w: have %d positions, need %d", ErrInsufficientHistory, len(window), max(minHistory, 2))
	}

	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	for i, p := range window {
		xs[i], ys[i] = p.X, p.Y
	}

	varX := stat.Variance(xs, nil)
	varY := stat.Variance(ys, nil)
	if varX < minSpread && varY < minSpread {
		return tactical.Point{}, fmt.Errorf("%w: positions do not spread", ErrInsufficientHistory)
	}
	if varX < minSpread*math.Max(1, varY) {
		return verticalCrossing(stat.Mean(xs, nil), radius)
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	return lineCrossing(slope, intercept, radius)
}

// lineCrossing intersects y = m·x + b with x² + y² = r².
func lineCrossing(m, b, r float64) (tactical.Point, error) {
	qa := 1 + m*m
	qb := 2 * m * b
	qc := b*b - r*r
	disc := qb*qb - 4*qa*qc
	if disc < 0 || math.IsNaN(disc) {
		return tactical.Point{}, fmt.Errorf("%w: discriminant %.3g", ErrNoIntersection, disc)
	}
	sq := math.Sqrt(disc)
	x1 := (-qb + sq) / (2 * qa)
	x2 := (-qb - sq) / (2 * qa)
	p1 := tactical.Point{X: x1, Y: m*x1 + b}
	p2 := tactical.Point{X: x2, Y: m*x2 + b}
	return pickForward(p1, p2), nil
}

// verticalCrossing intersects x = c with x² + y² = r².
func verticalCrossing(c, r float64) (tactical.Point, error) {
	rem := r*r - c*c
	if rem < 0 {
		return tactical.Point{}, fmt.Errorf("%w: vertical line x=%.2f outside radius %.2f", ErrNoIntersection, c, r)
	}
	y := math.Sqrt(rem)
	return pickForward(tactical.Point{X: c, Y: y}, tactical.Point{X: c, Y: -y}), nil
}

// pickForward returns a when it lies in front of the cameras, otherwise b.
// a is always the +sqrt root.
func pickForward(a, b tactical.Point) tactical.Point {
	if a.Y > 0 {
		return a
	}
	return b
}

// InBand reports whether a track at distance d is eligible for prediction:
// past the safe radius but not yet past the alert radius.
func InBand(d float64, radii tactical.ZoneRadii) bool {
	return d > radii.Safe && d < radii.Alert
}
