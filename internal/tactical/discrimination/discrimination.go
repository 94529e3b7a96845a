// Package discrimination filters one camera's raw blobs down to physically
// plausible ground-plane candidates.
package discrimination

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
)

// BackProjector maps a pixel to the ground plane.
type BackProjector interface {
	BackProject(px tactical.Point) (tactical.Point, error)
}

// Verdict records why a blob was accepted or rejected.
type Verdict int

const (
	Accepted Verdict = iota
	RejectArea
	RejectProjection
	RejectRange
	RejectCoverage
	RejectSizeModel
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case RejectArea:
		return "area"
	case RejectProjection:
		return "projection"
	case RejectRange:
		return "range"
	case RejectCoverage:
		return "coverage"
	case RejectSizeModel:
		return "size-model"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Config holds discrimination thresholds.
type Config struct {
	MinArea           float64 // exclusive lower bound on blob area (px²)
	MaxArea           float64 // exclusive upper bound on blob area (px²)
	Margin            float64 // allowed distance beyond the largest zone radius
	CoverageHalfAngle float64 // half-width of the camera's sector about +Y, degrees
	AreaModelK        float64 // expected area = K·distance^P
	AreaModelP        float64
	LowerFactor       float64 // accept area in (Lower·expected, Upper·expected)
	UpperFactor       float64
	Offset            string // config.OffsetNone, OffsetTop or OffsetBottom
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MinArea:           cfg.GetMinBlobArea(),
		MaxArea:           cfg.GetMaxBlobArea(),
		Margin:            cfg.GetDiscriminationMargin(),
		CoverageHalfAngle: cfg.GetCoverageHalfAngleDeg(),
		AreaModelK:        cfg.GetAreaModelK(),
		AreaModelP:        cfg.GetAreaModelP(),
		LowerFactor:       cfg.GetAreaLowerFactor(),
		UpperFactor:       cfg.GetAreaUpperFactor(),
		Offset:            cfg.GetCentroidOffset(),
	}
}

// ExpectedArea returns the modelled pixel area of a target at distance d.
func (c Config) ExpectedArea(d float64) float64 {
	return c.AreaModelK * math.Pow(d, c.AreaModelP)
}

// Discriminator applies Config against the current zone radii.
type Discriminator struct {
	mu    sync.RWMutex
	cfg   Config
	radii tactical.ZoneRadii
	// coverageSlope is tan(90° - half angle): a point is inside the sector
	// when |x|·slope < |y|.
	coverageSlope float64
}

// New creates a Discriminator.
func New(cfg Config, radii tactical.ZoneRadii) *Discriminator {
	return &Discriminator{
		cfg:           cfg,
		radii:         radii,
		coverageSlope: math.Tan((90 - cfg.CoverageHalfAngle) * math.Pi / 180),
	}
}

// SetZoneRadii updates the range limit after a preset change.
func (d *Discriminator) SetZoneRadii(radii tactical.ZoneRadii) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.radii = radii
}

// Check classifies a single blob, returning its ground position when
// accepted.
func (d *Discriminator) Check(b tactical.Blob, proj BackProjector) (tactical.Point, Verdict) {
	d.mu.RLock()
	cfg, maxRange, slope := d.cfg, d.radii.Max()+d.cfg.Margin, d.coverageSlope
	d.mu.RUnlock()

	if !(b.Area > cfg.MinArea && b.Area < cfg.MaxArea) {
		return tactical.Point{}, RejectArea
	}

	px := b.Centroid
	switch cfg.Offset {
	case config.OffsetTop:
		px.Y -= b.Radius
	case config.OffsetBottom:
		px.Y += b.Radius
	}
	pos, err := proj.BackProject(px)
	if err != nil || !pos.IsFinite() {
		return tactical.Point{}, RejectProjection
	}

	dist := pos.Norm()
	if dist > maxRange {
		return pos, RejectRange
	}
	if !(math.Abs(pos.X)*slope < math.Abs(pos.Y)) {
		return pos, RejectCoverage
	}
	expected := cfg.ExpectedArea(dist)
	if !(b.Area > cfg.LowerFactor*expected && b.Area < cfg.UpperFactor*expected) {
		return pos, RejectSizeModel
	}
	return pos, Accepted
}

// Discriminate filters one camera's blobs for the tick, preserving blob
// order in the output.
func (d *Discriminator) Discriminate(camera string, blobs []tactical.Blob, proj BackProjector) []tactical.ValidatedPosition {
	var out []tactical.ValidatedPosition
	var rejected [RejectSizeModel + 1]int
	for _, b := range blobs {
		pos, v := d.Check(b, proj)
		if v != Accepted {
			rejected[v]++
			tactical.Tracef("[Discrimination] %s blob at %v area=%.0f rejected: %s (ground %v)", camera, b.Centroid, b.Area, v, pos)
			continue
		}
		out = append(out, tactical.ValidatedPosition{Position: pos, CameraID: camera})
	}
	if len(blobs) > 0 {
		tactical.Tracef("[Discrimination] %s: %d blobs -> %d candidates (area=%d projection=%d range=%d coverage=%d size=%d)",
			camera, len(blobs), len(out), rejected[RejectArea], rejected[RejectProjection],
			rejected[RejectRange], rejected[RejectCoverage], rejected[RejectSizeModel])
	}
	return out
}
