// Package correlation merges the validated candidates of all cameras for
// one tick into unique ground positions.
package correlation

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
)

// Strategy merges candidates, given in camera order then blob order, into
// unique positions. The output order follows first appearance.
type Strategy interface {
	Merge(candidates []tactical.ValidatedPosition) []tactical.Point
}

// NewStrategy returns the strategy named by mode.
func NewStrategy(mode string, radius float64) (Strategy, error) {
	switch mode {
	case config.CorrelationMidpoint, "":
		return MidpointMerge{Radius: radius}, nil
	case config.CorrelationCentroid:
		return CentroidCluster{Radius: radius}, nil
	default:
		return nil, fmt.Errorf("unknown correlation mode %q", mode)
	}
}

// FromTuning builds the configured strategy.
func FromTuning(cfg *config.TuningConfig) (Strategy, error) {
	return NewStrategy(cfg.GetCorrelationMode(), cfg.GetMergeRadius())
}

// MidpointMerge is single-pass pairwise averaging: each candidate replaces
// the first unique entry closer than Radius with their midpoint, or is
// appended. Later merges compound onto already-averaged points, so the
// result depends on arrival order and drifts towards late arrivals.
type MidpointMerge struct {
	Radius float64
}

// Merge implements Strategy.
func (m MidpointMerge) Merge(candidates []tactical.ValidatedPosition) []tactical.Point {
	unique := make([]tactical.Point, 0, len(candidates))
	for _, c := range candidates {
		merged := false
		for i, u := range unique {
			if c.Position.Dist(u) < m.Radius {
				unique[i] = u.Mid(c.Position)
				merged = true
				break
			}
		}
		if !merged {
			unique = append(unique, c.Position)
		}
	}
	return unique
}

// CentroidCluster assigns each candidate to the nearest cluster whose
// running mean is closer than Radius and reports cluster means. Every
// member carries equal weight, so the result does not drift the way
// MidpointMerge does.
type CentroidCluster struct {
	Radius float64
}

type cluster struct {
	xs, ys []float64
}

func (c *cluster) add(p tactical.Point) {
	c.xs = append(c.xs, p.X)
	c.ys = append(c.ys, p.Y)
}

func (c *cluster) mean() tactical.Point {
	return tactical.Point{X: stat.Mean(c.xs, nil), Y: stat.Mean(c.ys, nil)}
}

// Merge implements Strategy.
func (m CentroidCluster) Merge(candidates []tactical.ValidatedPosition) []tactical.Point {
	var clusters []cluster
	for _, c := range candidates {
		best, bestDist := -1, m.Radius
		for i := range clusters {
			if d := c.Position.Dist(clusters[i].mean()); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			clusters = append(clusters, cluster{})
			best = len(clusters) - 1
		}
		clusters[best].add(c.Position)
	}
	out := make([]tactical.Point, len(clusters))
	for i := range clusters {
		out[i] = clusters[i].mean()
	}
	return out
}
