package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/correlation"
	"github.com/banshee-data/tactical/internal/tactical/discrimination"
	"github.com/banshee-data/tactical/internal/tactical/prediction"
	"github.com/banshee-data/tactical/internal/tactical/tracking"
	"github.com/banshee-data/tactical/internal/tactical/zones"
	"github.com/banshee-data/tactical/internal/timeutil"
)

var (
	// ErrUnknownCamera is returned by control operations naming a camera
	// the processor was not built with.
	ErrUnknownCamera = errors.New("unknown camera")
	// ErrUnknownPreset is returned by SetZonePreset for an unconfigured
	// preset name.
	ErrUnknownPreset = errors.New("unknown zone preset")
)

// FrameSource yields the newest frame for one camera.
type FrameSource interface {
	ReadFrame(ctx context.Context) (tactical.Frame, error)
}

// MarkerDetector locates the six calibration marker centroids in a
// camera's view, in marker order.
type MarkerDetector interface {
	DetectMarkers(ctx context.Context) ([]tactical.Point, error)
}

// AlertSink receives every alert raised by the zone state machine.
type AlertSink interface {
	RecordAlert(ctx context.Context, a zones.Alert) error
}

// CalibrationSink persists a camera record after a successful solve.
type CalibrationSink interface {
	SaveCalibration(ctx context.Context, rec calibration.Record) error
}

// Camera bundles one camera's calibration engine with its front-end
// adapters. Source and Markers may be nil for cameras driven only through
// ProcessFrames.
type Camera struct {
	Name    string
	Engine  *calibration.Engine
	Source  FrameSource
	Markers MarkerDetector
}

// Config holds the stage configurations for a Processor.
type Config struct {
	Discrimination discrimination.Config
	Tracking       tracking.Config
	Prediction     prediction.Config
	Correlation    correlation.Strategy
	Association    tracking.AssociationStrategy
	Presets        map[string]tactical.ZoneRadii
	ActivePreset   string
	Hysteresis     float64
	TickInterval   time.Duration
	ReadTimeout    time.Duration
	AlertRingSize  int
}

// ConfigFromTuning builds a Config from a validated TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) (Config, error) {
	corr, err := correlation.FromTuning(cfg)
	if err != nil {
		return Config{}, err
	}
	assoc, err := tracking.NewAssociationStrategy(cfg.GetAssociationMode())
	if err != nil {
		return Config{}, err
	}
	return Config{
		Discrimination: discrimination.ConfigFromTuning(cfg),
		Tracking:       tracking.ConfigFromTuning(cfg),
		Prediction:     prediction.ConfigFromTuning(cfg),
		Correlation:    corr,
		Association:    assoc,
		Presets:        cfg.GetZonePresets(),
		ActivePreset:   cfg.GetActivePreset(),
		Hysteresis:     cfg.GetHysteresisMargin(),
		TickInterval:   cfg.GetTickInterval(),
		ReadTimeout:    cfg.GetSourceReadTimeout(),
		AlertRingSize:  cfg.GetAlertRingSize(),
	}, nil
}

// TickResult reports what one tick did.
type TickResult struct {
	Time      time.Time
	Frames    int
	Validated int
	Unique    int
	Tracking  tracking.UpdateSummary
	Alerts    []zones.Alert
	// CameraErrors holds per-camera read failures; those cameras
	// contributed nothing this tick.
	CameraErrors map[string]error
}

// Stats are running totals since the processor was created.
type Stats struct {
	Ticks       uint64    `json:"ticks"`
	Alerts      uint64    `json:"alerts"`
	ReadErrors  uint64    `json:"read_errors"`
	LastTick    time.Time `json:"last_tick"`
	LastUnique  int       `json:"last_unique"`
	ActiveCount int       `json:"active_tracks"`
}

// Processor owns the core state for one deployment. A single mutex
// serialises ticks and control operations.
type Processor struct {
	mu      sync.Mutex
	cfg     Config
	cameras []*Camera // tick order
	byName  map[string]*Camera
	disc    *discrimination.Discriminator
	corr    correlation.Strategy
	tracker *tracking.Tracker
	zones   zones.Machine
	preset  string
	stats   Stats

	enabled        atomic.Bool
	safeOriginOnly atomic.Bool

	alerts   *alertRing
	alertOut []AlertSink
	calOut   []CalibrationSink
	clock    timeutil.Clock
}

// New creates a processor over cameras, in the order given. Processing
// starts enabled.
func New(cfg Config, cameras []*Camera, clk timeutil.Clock) (*Processor, error) {
	radii, ok := cfg.Presets[cfg.ActivePreset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, cfg.ActivePreset)
	}
	if err := radii.Validate(); err != nil {
		return nil, fmt.Errorf("preset %s: %w", cfg.ActivePreset, err)
	}
	presets := make(map[string]tactical.ZoneRadii, len(cfg.Presets))
	for name, r := range cfg.Presets {
		presets[name] = r
	}
	cfg.Presets = presets
	if cfg.Correlation == nil {
		cfg.Correlation = correlation.MidpointMerge{Radius: 0.5}
	}
	if clk == nil {
		clk = timeutil.RealClock{}
	}

	p := &Processor{
		cfg:     cfg,
		byName:  make(map[string]*Camera, len(cameras)),
		disc:    discrimination.New(cfg.Discrimination, radii),
		corr:    cfg.Correlation,
		tracker: tracking.NewTracker(cfg.Tracking, cfg.Association),
		zones:   zones.Machine{Radii: radii, Hysteresis: cfg.Hysteresis},
		preset:  cfg.ActivePreset,
		alerts:  newAlertRing(cfg.AlertRingSize),
		clock:   clk,
	}
	for _, c := range cameras {
		if c == nil || c.Engine == nil {
			return nil, errors.New("camera without calibration engine")
		}
		if c.Name == "" {
			c.Name = c.Engine.Camera()
		}
		if _, dup := p.byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate camera %q", c.Name)
		}
		p.cameras = append(p.cameras, c)
		p.byName[c.Name] = c
	}
	p.tracker.SetSafeRadius(radii.Safe)
	p.enabled.Store(true)
	return p, nil
}

// AddAlertSink registers a receiver for alerts.
func (p *Processor) AddAlertSink(s AlertSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alertOut = append(p.alertOut, s)
}

// AddCalibrationSink registers a receiver for successful calibrations.
func (p *Processor) AddCalibrationSink(s CalibrationSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calOut = append(p.calOut, s)
}

// Run ticks every TickInterval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	interval := p.cfg.TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()
	tactical.Diagf("[Pipeline] tick loop started (%s interval, %d cameras)", interval, len(p.cameras))
	for {
		select {
		case <-ctx.Done():
			tactical.Diagf("[Pipeline] tick loop stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C():
			p.Tick(ctx)
		}
	}
}

// Tick reads the newest frame from every camera source, each bounded by
// the read timeout, and processes them. A camera that fails to deliver is
// left out of this tick only. While processing is disabled a tick reads
// nothing and returns a zero result.
func (p *Processor) Tick(ctx context.Context) TickResult {
	if !p.enabled.Load() {
		return TickResult{}
	}
	frames, errs := p.readFrames(ctx)
	res := p.ProcessFrames(ctx, p.clock.Now(), frames)
	if len(errs) > 0 {
		res.CameraErrors = errs
		p.mu.Lock()
		p.stats.ReadErrors += uint64(len(errs))
		p.mu.Unlock()
	}
	return res
}

func (p *Processor) readFrames(ctx context.Context) ([]tactical.Frame, map[string]error) {
	type result struct {
		frame tactical.Frame
		err   error
		ok    bool
	}
	results := make([]result, len(p.cameras))
	var wg sync.WaitGroup
	for i, c := range p.cameras {
		if c.Source == nil {
			continue
		}
		wg.Add(1)
		go func(i int, c *Camera) {
			defer wg.Done()
			readCtx := ctx
			if p.cfg.ReadTimeout > 0 {
				var cancel context.CancelFunc
				readCtx, cancel = context.WithTimeout(ctx, p.cfg.ReadTimeout)
				defer cancel()
			}
			f, err := c.Source.ReadFrame(readCtx)
			if err == nil && f.Camera == "" {
				f.Camera = c.Name
			}
			results[i] = result{frame: f, err: err, ok: true}
		}(i, c)
	}
	wg.Wait()

	// Frames are kept in camera order regardless of arrival order.
	var frames []tactical.Frame
	var errs map[string]error
	for i, r := range results {
		if !r.ok {
			continue
		}
		if r.err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[p.cameras[i].Name] = r.err
			tactical.Diagf("[Pipeline] camera %s: no frame this tick: %v", p.cameras[i].Name, r.err)
			continue
		}
		frames = append(frames, r.frame)
	}
	return frames, errs
}

// ProcessFrames runs one tick over frames taken at now. Frames are
// discriminated in the order given; frames from unknown or uncalibrated
// cameras are ignored.
func (p *Processor) ProcessFrames(ctx context.Context, now time.Time, frames []tactical.Frame) TickResult {
	p.mu.Lock()
	res := p.processLocked(now, frames)
	sinks := p.alertOut
	p.mu.Unlock()

	for _, a := range res.Alerts {
		p.alerts.add(a)
		for _, s := range sinks {
			if err := s.RecordAlert(ctx, a); err != nil {
				tactical.Opsf("[Pipeline] alert %s for track %d not recorded: %v", a.Kind, a.TrackID, err)
			}
		}
	}
	return res
}

func (p *Processor) processLocked(now time.Time, frames []tactical.Frame) TickResult {
	res := TickResult{Time: now, Frames: len(frames)}

	var validated []tactical.ValidatedPosition
	for _, f := range frames {
		c, ok := p.byName[f.Camera]
		if !ok {
			tactical.Tracef("[Pipeline] ignoring frame from unknown camera %q", f.Camera)
			continue
		}
		if !c.Engine.Valid() {
			tactical.Tracef("[Pipeline] camera %s uncalibrated; %d blobs ignored", c.Name, len(f.Blobs))
			continue
		}
		validated = append(validated, p.disc.Discriminate(c.Name, f.Blobs, c.Engine)...)
	}
	res.Validated = len(validated)

	unique := p.corr.Merge(validated)
	res.Unique = len(unique)
	res.Tracking = p.tracker.Update(unique, now)

	radii := p.zones.Radii
	filter := p.safeOriginOnly.Load()
	for _, tr := range p.tracker.Tracks() {
		crossing := tr.Crossing
		if tr.Updated && prediction.InBand(tr.Distance(), radii) {
			c, err := prediction.Crossing(tr.Window, radii.Predict, p.cfg.Prediction.MinHistory)
			if err != nil {
				crossing = nil
			} else {
				crossing = &c
			}
			p.tracker.SetCrossing(tr.ID, crossing)
		}

		if filter && !tr.SafeOrigin {
			continue
		}
		flags, alert := p.zones.Evaluate(tr.ID, tr.Position, crossing, tr.Zone, now)
		if flags != tr.Zone {
			p.tracker.SetZoneFlags(tr.ID, flags)
		}
		if alert != nil {
			res.Alerts = append(res.Alerts, *alert)
		}
	}

	p.stats.Ticks++
	p.stats.Alerts += uint64(len(res.Alerts))
	p.stats.LastTick = now
	p.stats.LastUnique = res.Unique
	p.stats.ActiveCount = p.tracker.Len()
	tactical.Tracef("[Pipeline] tick: frames=%d validated=%d unique=%d tracks=%d alerts=%d",
		res.Frames, res.Validated, res.Unique, p.stats.ActiveCount, len(res.Alerts))
	return res
}
