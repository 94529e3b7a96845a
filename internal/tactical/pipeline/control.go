package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/tracking"
	"github.com/banshee-data/tactical/internal/tactical/zones"
)

// Calibrate solves a camera's pose. With nil points the camera's marker
// detector supplies them. The camera status is returned even on failure;
// a failed calibration leaves the camera uncalibrated.
func (p *Processor) Calibrate(ctx context.Context, camera string, points []tactical.Point) (calibration.Status, error) {
	c, ok := p.byName[camera]
	if !ok {
		return calibration.Status{}, fmt.Errorf("%w: %q", ErrUnknownCamera, camera)
	}
	if points == nil {
		points = p.detectMarkers(ctx, c)
	}

	p.mu.Lock()
	err := c.Engine.Calibrate(points)
	sinks := p.calOut
	p.mu.Unlock()
	if err != nil {
		return c.Engine.Status(), err
	}
	tactical.Opsf("[Pipeline] camera %s calibrated from %d points", camera, len(points))
	p.saveCalibration(ctx, sinks, c)
	return c.Engine.Status(), nil
}

// detectMarkers asks the camera's detector for marker centroids. A
// detection failure yields no points, which the engine records as an
// insufficient-points calibration failure.
func (p *Processor) detectMarkers(ctx context.Context, c *Camera) []tactical.Point {
	if c.Markers == nil {
		tactical.Diagf("[Pipeline] camera %s has no marker detector", c.Name)
		return []tactical.Point{}
	}
	points, err := c.Markers.DetectMarkers(ctx)
	if err != nil {
		tactical.Diagf("[Pipeline] camera %s marker detection failed: %v", c.Name, err)
		return []tactical.Point{}
	}
	return points
}

func (p *Processor) saveCalibration(ctx context.Context, sinks []CalibrationSink, c *Camera) {
	rec := c.Engine.Record()
	for _, s := range sinks {
		if err := s.SaveCalibration(ctx, rec); err != nil {
			tactical.Opsf("[Pipeline] camera %s calibration not saved: %v", c.Name, err)
		}
	}
}

// SetZonePreset switches every stage to the named preset's radii. Cameras
// with saved image points are re-solved against the new marker layout; a
// camera that fails to re-solve is marked uncalibrated without affecting
// the others, and its error is included in the returned error.
func (p *Processor) SetZonePreset(ctx context.Context, name string) error {
	p.mu.Lock()
	radii, ok := p.cfg.Presets[name]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}

	var errs []error
	var resolved []*Camera
	for _, c := range p.cameras {
		had := len(c.Engine.Record().ImagePoints) > 0
		if err := c.Engine.SetZoneRadii(radii); err != nil {
			errs = append(errs, fmt.Errorf("camera %s: %w", c.Name, err))
			continue
		}
		if had {
			resolved = append(resolved, c)
		}
	}
	p.disc.SetZoneRadii(radii)
	p.tracker.SetSafeRadius(radii.Safe)
	p.zones.Radii = radii
	p.preset = name
	sinks := p.calOut
	p.mu.Unlock()

	tactical.Opsf("[Pipeline] zone preset set to %s (safe=%.1f alert=%.1f predict=%.1f)", name, radii.Safe, radii.Alert, radii.Predict)
	for _, c := range resolved {
		p.saveCalibration(ctx, sinks, c)
	}
	return errors.Join(errs...)
}

// ClearAllTracks drops every track and returns how many were removed.
func (p *Processor) ClearAllTracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.tracker.Clear()
	tactical.Opsf("[Pipeline] cleared %d tracks", n)
	return n
}

// SetProcessingEnabled pauses or resumes ticking. Track state is kept
// while paused.
func (p *Processor) SetProcessingEnabled(enabled bool) {
	if p.enabled.Swap(enabled) != enabled {
		tactical.Opsf("[Pipeline] processing enabled=%v", enabled)
	}
}

// ProcessingEnabled reports whether ticks are being processed.
func (p *Processor) ProcessingEnabled() bool {
	return p.enabled.Load()
}

// SetSafeOriginFilter restricts the snapshot and zone alerts to tracks
// that were first seen inside the safe radius.
func (p *Processor) SetSafeOriginFilter(on bool) {
	if p.safeOriginOnly.Swap(on) != on {
		tactical.Opsf("[Pipeline] safe-origin filter=%v", on)
	}
}

// SafeOriginFilter reports whether the safe-origin filter is on.
func (p *Processor) SafeOriginFilter() bool {
	return p.safeOriginOnly.Load()
}

// Snapshot is the state handed to renderers and the API.
type Snapshot struct {
	Time           time.Time          `json:"time"`
	Preset         string             `json:"preset"`
	Radii          tactical.ZoneRadii `json:"radii"`
	Enabled        bool               `json:"enabled"`
	SafeOriginOnly bool               `json:"safe_origin_only"`
	Tracks         []tracking.Track   `json:"tracks"`
}

// Snapshot returns the current tracks, honouring the safe-origin filter
// unless all is set.
func (p *Processor) Snapshot(all bool) Snapshot {
	p.mu.Lock()
	s := Snapshot{
		Time:           p.stats.LastTick,
		Preset:         p.preset,
		Radii:          p.zones.Radii,
		Enabled:        p.enabled.Load(),
		SafeOriginOnly: p.safeOriginOnly.Load(),
	}
	tracks := p.tracker.Tracks()
	p.mu.Unlock()

	s.Tracks = make([]tracking.Track, 0, len(tracks))
	for _, tr := range tracks {
		if s.SafeOriginOnly && !all && !tr.SafeOrigin {
			continue
		}
		s.Tracks = append(s.Tracks, tr)
	}
	return s
}

// Alerts returns up to limit recent alerts, oldest first.
func (p *Processor) Alerts(limit int) []zones.Alert {
	return p.alerts.recent(limit)
}

// Cameras returns every camera's calibration status in tick order.
func (p *Processor) Cameras() []calibration.Status {
	out := make([]calibration.Status, 0, len(p.cameras))
	for _, c := range p.cameras {
		out = append(out, c.Engine.Status())
	}
	return out
}

// Camera returns one camera's status.
func (p *Processor) Camera(name string) (calibration.Status, error) {
	c, ok := p.byName[name]
	if !ok {
		return calibration.Status{}, fmt.Errorf("%w: %q", ErrUnknownCamera, name)
	}
	return c.Engine.Status(), nil
}

// Preset returns the active preset name and radii.
func (p *Processor) Preset() (string, tactical.ZoneRadii) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preset, p.zones.Radii
}

// Presets returns the configured preset names, sorted.
func (p *Processor) Presets() []string {
	out := make([]string, 0, len(p.cfg.Presets))
	for name := range p.cfg.Presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stats returns running totals.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
