// Package zones runs the per-track zone state machine. A track raises at
// most one alert per outward boundary crossing; the latch for a boundary
// re-arms only once the track comes back inside it by the hysteresis
// margin.
package zones

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
)

// Kind identifies the boundary an alert was raised for.
type Kind string

const (
	KindEnteredAlert   Kind = "entered_alert_zone"
	KindLeftAlert      Kind = "left_alert_zone"
	KindCrossedPredict Kind = "crossed_prediction_line"
)

// Alert is one zone event.
type Alert struct {
	ID       string          `json:"id"`
	TrackID  int64           `json:"track_id"`
	Kind     Kind            `json:"kind"`
	Message  string          `json:"message"`
	Position tactical.Point  `json:"position"`
	Crossing *tactical.Point `json:"crossing,omitempty"`
	Time     time.Time       `json:"time"`
}

// Machine evaluates zone transitions for the current radii.
type Machine struct {
	Radii      tactical.ZoneRadii
	Hysteresis float64
}

// FromTuning builds a Machine for the active preset.
func FromTuning(cfg *config.TuningConfig) Machine {
	return Machine{Radii: cfg.ActiveZoneRadii(), Hysteresis: cfg.GetHysteresisMargin()}
}

// Evaluate applies one tick for a track at pos. crossing is the track's
// current predicted crossing, if any. It returns the updated latches and
// the alert raised, or nil.
func (m Machine) Evaluate(trackID int64, pos tactical.Point, crossing *tactical.Point, flags tactical.ZoneFlags, now time.Time) (tactical.ZoneFlags, *Alert) {
	d := pos.Norm()
	r := m.Radii

	if d < r.Safe-m.Hysteresis {
		flags.LeftSafe = false
	}
	if d < r.Alert-m.Hysteresis {
		flags.LeftAlert = false
	}
	if d < r.Predict-m.Hysteresis {
		flags.HitPredict = false
	}

	var a *Alert
	switch {
	case d >= r.Predict && !flags.HitPredict:
		flags.HitPredict, flags.LeftAlert, flags.LeftSafe = true, true, true
		a = newAlert(trackID, KindCrossedPredict, pos, nil, now,
			fmt.Sprintf("Target %d crossed prediction line at %v", trackID, pos))
	case d >= r.Alert && !flags.LeftAlert && crossing != nil:
		flags.LeftAlert, flags.LeftSafe = true, true
		c := *crossing
		a = newAlert(trackID, KindLeftAlert, pos, &c, now,
			fmt.Sprintf("Target %d left alert zone, predicted crossing %v", trackID, c))
	case d >= r.Safe && !flags.LeftSafe:
		flags.LeftSafe = true
		a = newAlert(trackID, KindEnteredAlert, pos, nil, now,
			fmt.Sprintf("Target %d entered alert zone", trackID))
	}
	if a != nil {
		tactical.Opsf("[Zones] %s", a.Message)
	}
	return flags, a
}

func newAlert(trackID int64, kind Kind, pos tactical.Point, crossing *tactical.Point, now time.Time, msg string) *Alert {
	return &Alert{
		ID:       uuid.NewString(),
		TrackID:  trackID,
		Kind:     kind,
		Message:  msg,
		Position: pos,
		Crossing: crossing,
		Time:     now,
	}
}
