package tracking

import (
	"time"

	"github.com/banshee-data/tactical/internal/tactical"
)

// TrackState is the lifecycle state of a track.
type TrackState string

const (
	StateNew      TrackState = "new"      // spawned this tick, no association yet
	StateTracking TrackState = "tracking" // associated at least once
	StateExpired  TrackState = "expired"  // stale past the persist time, removed
)

// TurnStage counts the manoeuvres seen on a track, saturating at second.
type TurnStage int

const (
	TurnNone TurnStage = iota
	TurnFirst
	TurnSecond
)

func (s TurnStage) String() string {
	switch s {
	case TurnFirst:
		return "first"
	case TurnSecond:
		return "second"
	default:
		return "none"
	}
}

// Track is one persistent target estimate.
type Track struct {
	ID    int64      `json:"id"`
	State TrackState `json:"state"`

	// Position is the last measurement; Velocity is the filtered estimate.
	Position tactical.Point `json:"position"`
	Velocity tactical.Point `json:"velocity"`

	// History holds filtered positions, bounded by Config.MaxHistory.
	History []tactical.Point `json:"history"`
	// Window holds the recent filtered positions used for crossing
	// prediction, bounded by Config.PredictionWindow and cleared on a turn.
	Window []tactical.Point `json:"-"`

	Predicted       *tactical.Point `json:"predicted,omitempty"`        // Kalman next position
	Crossing        *tactical.Point `json:"crossing,omitempty"`         // predicted boundary crossing
	InitialCrossing *tactical.Point `json:"initial_crossing,omitempty"` // first non-nil Crossing
	MaxVelocity     *tactical.Point `json:"max_velocity,omitempty"`

	Zone tactical.ZoneFlags `json:"zone"`
	Turn TurnStage          `json:"turn"`

	MissedUpdates int       `json:"missed_updates"`
	Updated       bool      `json:"updated"`
	SafeOrigin    bool      `json:"safe_origin"`
	NumericFault  bool      `json:"numeric_fault,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastUpdate    time.Time `json:"last_update"`

	filter *KalmanFilter
}

// Distance returns the track's distance from the origin.
func (t *Track) Distance() float64 {
	return t.Position.Norm()
}

// Clone returns a deep copy without the filter.
func (t *Track) Clone() Track {
	c := *t
	c.filter = nil
	c.History = append([]tactical.Point(nil), t.History...)
	c.Window = append([]tactical.Point(nil), t.Window...)
	c.Predicted = clonePoint(t.Predicted)
	c.Crossing = clonePoint(t.Crossing)
	c.InitialCrossing = clonePoint(t.InitialCrossing)
	c.MaxVelocity = clonePoint(t.MaxVelocity)
	return c
}

func clonePoint(p *tactical.Point) *tactical.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// appendBounded appends p and drops the oldest entries beyond max.
func appendBounded(s []tactical.Point, p tactical.Point, max int) []tactical.Point {
	s = append(s, p)
	if max > 0 && len(s) > max {
		s = append(s[:0], s[len(s)-max:]...)
	}
	return s
}
