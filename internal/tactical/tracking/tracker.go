package tracking

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
)

// Config holds tracker parameters.
type Config struct {
	KnownGate        float64       // gate around the Kalman prediction
	UnknownGate      float64       // gate around the last position, before any prediction
	PersistTime      time.Duration // tracks older than this since last update are pruned
	MaxHistory       int           // bound on Track.History
	PredictionWindow int           // bound on Track.Window
	TurnThreshold    float64       // degrees between velocity and max velocity
	TurnMinHistory   int           // Window length required before a turn can trigger
	Kalman           KalmanConfig
}

// DefaultConfig returns tracker configuration loaded from the canonical
// tuning defaults file. Panics if the file cannot be found; intended for
// tests.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		KnownGate:        cfg.GetKnownGate(),
		UnknownGate:      cfg.GetUnknownGate(),
		PersistTime:      cfg.GetPersistTime(),
		MaxHistory:       cfg.GetMaxHistory(),
		PredictionWindow: cfg.GetPredictionMinHistory(),
		TurnThreshold:    cfg.GetTurnThresholdDeg(),
		TurnMinHistory:   cfg.GetTurnMinHistory(),
		Kalman: KalmanConfig{
			ProcessNoise:     cfg.GetProcessNoise(),
			MeasurementNoise: cfg.GetMeasurementNoise(),
			TimeStep:         cfg.GetTimeStep(),
		},
	}
}

// UpdateSummary reports what one Update did.
type UpdateSummary struct {
	Matched int
	Dropped int // non-finite positions ignored
	Spawned []int64
	Turned  []int64
	Expired []int64
	Faults  []int64
}

// Tracker exclusively owns the track list.
type Tracker struct {
	mu         sync.RWMutex
	cfg        Config
	assoc      AssociationStrategy
	tracks     []*Track // creation order
	nextID     int64
	safeRadius float64
}

// NewTracker creates a tracker. A nil strategy selects FirstFit.
func NewTracker(cfg Config, assoc AssociationStrategy) *Tracker {
	if assoc == nil {
		assoc = FirstFit{}
	}
	return &Tracker{cfg: cfg, assoc: assoc, nextID: 1}
}

// SetSafeRadius sets the radius used to tag tracks spawned inside the safe
// zone.
func (t *Tracker) SetSafeRadius(r float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.safeRadius = r
}

// gate applies the known gate around the Kalman prediction, or the wider
// unknown gate around the last position for tracks with no prediction.
func (t *Tracker) gate(tr *Track, pos tactical.Point) (float64, bool) {
	if tr.Predicted != nil {
		d := pos.Dist(*tr.Predicted)
		return d, d < t.cfg.KnownGate
	}
	d := pos.Dist(tr.Position)
	return d, d < t.cfg.UnknownGate
}

// Update runs one tick of association, filtering, turn detection and
// pruning against the tick's unique positions.
func (t *Tracker) Update(positions []tactical.Point, now time.Time) UpdateSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sum UpdateSummary

	finite := positions[:0:0]
	for _, p := range positions {
		if !p.IsFinite() {
			sum.Dropped++
			tactical.Opsf("[Tracking] dropping non-finite position %v", p)
			continue
		}
		finite = append(finite, p)
	}
	positions = finite

	// Step 1: clear the per-cycle flag.
	for _, tr := range t.tracks {
		tr.Updated = false
	}

	// Step 2: associate in creation order and update matched tracks.
	assignment := t.assoc.Associate(t.tracks, positions, t.gate)
	matched := make([]bool, len(positions))
	for i, tr := range t.tracks {
		j := -1
		if i < len(assignment) {
			j = assignment[i]
		}
		if j < 0 || j >= len(positions) || matched[j] {
			tr.MissedUpdates++
			continue
		}
		matched[j] = true
		if !t.applyMeasurement(tr, positions[j], now) {
			sum.Faults = append(sum.Faults, tr.ID)
		}
		sum.Matched++
	}

	// Step 3: spawn tracks for unmatched positions.
	for j, pos := range positions {
		if matched[j] {
			continue
		}
		tr := t.spawn(pos, now)
		sum.Spawned = append(sum.Spawned, tr.ID)
	}

	// Step 4: turn detection on tracks updated this tick.
	for _, tr := range t.tracks {
		if tr.Updated && t.detectTurn(tr) {
			sum.Turned = append(sum.Turned, tr.ID)
		}
	}

	// Step 5: prune stale tracks (copy-then-filter).
	kept := make([]*Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if now.Sub(tr.LastUpdate) > t.cfg.PersistTime {
			tr.State = StateExpired
			sum.Expired = append(sum.Expired, tr.ID)
			tactical.Diagf("[Tracking] track %d expired (last update %s ago, %d history points)",
				tr.ID, now.Sub(tr.LastUpdate).Round(time.Millisecond), len(tr.History))
			continue
		}
		kept = append(kept, tr)
	}
	t.tracks = kept

	tactical.Tracef("[Tracking] %d positions: matched=%d spawned=%d turned=%d expired=%d active=%d",
		len(positions), sum.Matched, len(sum.Spawned), len(sum.Turned), len(sum.Expired), len(t.tracks))
	return sum
}

// applyMeasurement corrects and predicts tr with pos. It returns false if
// the filter reported a numeric failure.
func (t *Tracker) applyMeasurement(tr *Track, pos tactical.Point, now time.Time) bool {
	tr.Position = pos
	tr.LastUpdate = now
	tr.Updated = true
	tr.State = StateTracking
	if tr.MissedUpdates > 0 {
		tr.MissedUpdates--
	}

	if tr.NumericFault {
		// Forced reset after an earlier failure.
		tr.filter = NewKalmanFilter(t.cfg.Kalman, pos)
		tr.NumericFault = false
	}

	state, err := tr.filter.Correct(pos)
	if err != nil {
		tr.NumericFault = true
		tactical.Opsf("[Tracking] track %d: %v; keeping last good state", tr.ID, err)
		return false
	}

	tr.Velocity = state.Velocity
	if tr.MaxVelocity == nil || state.Velocity.Norm() > tr.MaxVelocity.Norm() {
		v := state.Velocity
		tr.MaxVelocity = &v
	}
	tr.History = appendBounded(tr.History, state.Position, t.cfg.MaxHistory)
	tr.Window = appendBounded(tr.Window, state.Position, t.cfg.PredictionWindow)

	next := tr.filter.Predict()
	tr.Predicted = &next
	return true
}

func (t *Tracker) spawn(pos tactical.Point, now time.Time) *Track {
	tr := &Track{
		ID:         t.nextID,
		State:      StateNew,
		Position:   pos,
		History:    []tactical.Point{pos},
		Window:     []tactical.Point{pos},
		Updated:    true,
		SafeOrigin: pos.Norm() < t.safeRadius,
		FirstSeen:  now,
		LastUpdate: now,
		filter:     NewKalmanFilter(t.cfg.Kalman, pos),
	}
	t.nextID++
	t.tracks = append(t.tracks, tr)
	tactical.Diagf("[Tracking] track %d created at %v (safe origin=%v)", tr.ID, pos, tr.SafeOrigin)
	return tr
}

// headingChange returns the signed angle from a to b in degrees.
func headingChange(a, b tactical.Point) float64 {
	cross := a.X*b.Y - a.Y*b.X
	dot := a.X*b.X + a.Y*b.Y
	return math.Atan2(cross, dot) * 180 / math.Pi
}

// detectTurn resets the prediction state of a track whose velocity has
// swung away from its fastest observed heading.
func (t *Tracker) detectTurn(tr *Track) bool {
	if len(tr.Window) <= t.cfg.TurnMinHistory || tr.MaxVelocity == nil || tr.MaxVelocity.Norm() == 0 {
		return false
	}
	angle := headingChange(*tr.MaxVelocity, tr.Velocity)
	if math.Abs(angle) <= t.cfg.TurnThreshold {
		return false
	}

	tr.MaxVelocity = nil
	tr.Window = tr.Window[:0]
	tr.Crossing = nil
	tr.InitialCrossing = nil
	tr.filter = NewKalmanFilter(t.cfg.Kalman, tr.Position)
	tr.Predicted = nil
	if tr.Turn < TurnSecond {
		tr.Turn++
	}
	tactical.Diagf("[Tracking] track %d turned %.1f° (%s turn); prediction reset at %v", tr.ID, angle, tr.Turn, tr.Position)
	return true
}

// Tracks returns copies of the active tracks in creation order.
func (t *Tracker) Tracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = tr.Clone()
	}
	return out
}

// Track returns a copy of the track with the given id.
func (t *Tracker) Track(id int64) (Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if tr := t.find(id); tr != nil {
		return tr.Clone(), true
	}
	return Track{}, false
}

// Len returns the number of active tracks.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

func (t *Tracker) find(id int64) *Track {
	for _, tr := range t.tracks {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}

// SetCrossing records the prediction for a track. The first non-nil
// crossing since creation or the last turn is kept as InitialCrossing.
func (t *Tracker) SetCrossing(id int64, crossing *tactical.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := t.find(id)
	if tr == nil {
		return
	}
	tr.Crossing = clonePoint(crossing)
	if crossing != nil && tr.InitialCrossing == nil {
		tr.InitialCrossing = clonePoint(crossing)
	}
}

// SetZoneFlags stores the zone latches computed for a track.
func (t *Tracker) SetZoneFlags(id int64, flags tactical.ZoneFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr := t.find(id); tr != nil {
		tr.Zone = flags
	}
}

// Clear drops every track. Ids are not reused.
func (t *Tracker) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.tracks)
	t.tracks = nil
	tactical.Diagf("[Tracking] cleared %d tracks", n)
	return n
}
