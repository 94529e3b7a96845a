package tracking

import (
	"fmt"
	"math"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
)

// GateFunc reports the association distance between a track and a
// position, and whether the position lies inside the track's gate.
type GateFunc func(tr *Track, pos tactical.Point) (float64, bool)

// AssociationStrategy pairs tracks with positions. It returns, for each
// track in order, the index of its position or -1. No position may be
// assigned to more than one track.
type AssociationStrategy interface {
	Associate(tracks []*Track, positions []tactical.Point, gate GateFunc) []int
}

// NewAssociationStrategy returns the strategy named by mode.
func NewAssociationStrategy(mode string) (AssociationStrategy, error) {
	switch mode {
	case config.AssociationGreedy, "":
		return FirstFit{}, nil
	case config.AssociationHungarian:
		return Hungarian{}, nil
	default:
		return nil, fmt.Errorf("unknown association mode %q", mode)
	}
}

// FirstFit gives each track, oldest first, the first remaining position
// inside its gate. Latency is bounded and the result is reproducible, but
// a track may take a position that a later track needed more.
type FirstFit struct{}

// Associate implements AssociationStrategy.
func (FirstFit) Associate(tracks []*Track, positions []tactical.Point, gate GateFunc) []int {
	taken := make([]bool, len(positions))
	out := make([]int, len(tracks))
	for i, tr := range tracks {
		out[i] = -1
		for j, p := range positions {
			if taken[j] {
				continue
			}
			if _, ok := gate(tr, p); ok {
				out[i] = j
				taken[j] = true
				break
			}
		}
	}
	return out
}

// Hungarian minimises the total gated distance over all pairings.
type Hungarian struct{}

// Associate implements AssociationStrategy.
func (Hungarian) Associate(tracks []*Track, positions []tactical.Point, gate GateFunc) []int {
	if len(tracks) == 0 {
		return nil
	}
	cost := make([][]float64, len(tracks))
	for i, tr := range tracks {
		cost[i] = make([]float64, len(positions))
		for j, p := range positions {
			if d, ok := gate(tr, p); ok {
				cost[i][j] = d
			} else {
				cost[i][j] = forbidden
			}
		}
	}
	return hungarianAssign(cost)
}

// forbidden stands in for an infinite cost. It must exceed any gated
// distance while leaving sums of real costs exact to well below a millimetre.
const forbidden = 1e9

// hungarianAssign solves the rectangular assignment problem for an n×m
// cost matrix with the Kuhn-Munkres algorithm using potentials, O(n³).
// It returns assignments[i] = column for row i, or -1. Costs at or above
// forbidden are never assigned.
func hungarianAssign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if m == 0 {
		return result
	}

	dim := n
	if m > dim {
		dim = m
	}
	at := func(i, j int) float64 {
		if i < n && j < m {
			return cost[i][j]
		}
		return forbidden
	}

	// 1-indexed; column 0 is a virtual start column.
	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)   // p[j] = row matched to column j
	way := make([]int, dim+1) // previous column on the augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta, j1 := inf, -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				if cur := at(i0-1, j-1) - u[i0] - v[j]; cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta, j1 = minv[j], j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= dim; j++ {
		row, col := p[j]-1, j-1
		if row >= 0 && row < n && col < m && cost[row][col] < forbidden {
			result[row] = col
		}
	}
	return result
}
