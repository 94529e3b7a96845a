package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/tactical/internal/httputil"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/tactical/storage/sqlite"
	"github.com/banshee-data/tactical/internal/tactical/tracking"
	"github.com/banshee-data/tactical/internal/tactical/zones"
	"github.com/banshee-data/tactical/internal/units"
)

// TrackView is the API representation of a track.
type TrackView struct {
	ID              int64              `json:"id"`
	State           string             `json:"state"`
	Position        tactical.Point     `json:"position"`
	Distance        float64            `json:"distance"`
	Velocity        tactical.Point     `json:"velocity"`
	History         []tactical.Point   `json:"history"`
	Crossing        *tactical.Point    `json:"crossing,omitempty"`
	InitialCrossing *tactical.Point    `json:"initial_crossing,omitempty"`
	Zone            tactical.ZoneFlags `json:"zone"`
	Turn            string             `json:"turn"`
	SafeOrigin      bool               `json:"safe_origin"`
	LastUpdate      string             `json:"last_update"`
}

// TracksResponse is the body of GET /api/tracks.
type TracksResponse struct {
	Time           string             `json:"time"`
	Units          string             `json:"units"`
	VelocityUnits  string             `json:"velocity_units"`
	Preset         string             `json:"preset"`
	Radii          tactical.ZoneRadii `json:"radii"`
	Enabled        bool               `json:"enabled"`
	SafeOriginOnly bool               `json:"safe_origin_only"`
	Tracks         []TrackView        `json:"tracks"`
}

// outputUnits returns the requested display unit, or an error naming the
// valid ones.
func (s *Server) outputUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if err := units.Validate(u); err != nil {
		return "", err
	}
	return u, nil
}

func convertPoint(p tactical.Point, from, to string) tactical.Point {
	return tactical.Point{X: units.ConvertLength(p.X, from, to), Y: units.ConvertLength(p.Y, from, to)}
}

func convertPointPtr(p *tactical.Point, from, to string) *tactical.Point {
	if p == nil {
		return nil
	}
	c := convertPoint(*p, from, to)
	return &c
}

func convertRadii(r tactical.ZoneRadii, from, to string) tactical.ZoneRadii {
	return tactical.ZoneRadii{
		Safe:    units.ConvertLength(r.Safe, from, to),
		Alert:   units.ConvertLength(r.Alert, from, to),
		Predict: units.ConvertLength(r.Predict, from, to),
	}
}

func (s *Server) trackView(tr tracking.Track, to string) TrackView {
	v := TrackView{
		ID:              tr.ID,
		State:           string(tr.State),
		Position:        convertPoint(tr.Position, s.units, to),
		Distance:        units.ConvertLength(tr.Distance(), s.units, to),
		Velocity:        convertPoint(tr.Velocity, s.units, to),
		History:         make([]tactical.Point, len(tr.History)),
		Crossing:        convertPointPtr(tr.Crossing, s.units, to),
		InitialCrossing: convertPointPtr(tr.InitialCrossing, s.units, to),
		Zone:            tr.Zone,
		Turn:            tr.Turn.String(),
		SafeOrigin:      tr.SafeOrigin,
		LastUpdate:      tr.LastUpdate.UTC().Format(timeFormat),
	}
	for i, p := range tr.History {
		v.History[i] = convertPoint(p, s.units, to)
	}
	return v
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// listTracks returns active tracks. The processor's safe-origin filter
// applies unless all=true; safe_origin=true filters regardless.
func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	to, err := s.outputUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	snap := s.ctl.Snapshot(queryBool(r, "all"))
	onlySafe := queryBool(r, "safe_origin")
	resp := TracksResponse{
		Units:          to,
		VelocityUnits:  units.SpeedLabel(to),
		Preset:         snap.Preset,
		Radii:          convertRadii(snap.Radii, s.units, to),
		Enabled:        snap.Enabled,
		SafeOriginOnly: snap.SafeOriginOnly || onlySafe,
		Tracks:         make([]TrackView, 0, len(snap.Tracks)),
	}
	if !snap.Time.IsZero() {
		resp.Time = snap.Time.UTC().Format(timeFormat)
	}
	for _, tr := range snap.Tracks {
		if onlySafe && !tr.SafeOrigin {
			continue
		}
		resp.Tracks = append(resp.Tracks, s.trackView(tr, to))
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) clearTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	n := s.ctl.ClearAllTracks()
	httputil.WriteJSONOK(w, map[string]int{"cleared": n})
}

// listAlerts returns recent alerts, oldest first, from the in-memory ring,
// or newest first from the store with source=store.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	if r.URL.Query().Get("source") == "store" {
		if s.history == nil {
			httputil.NotFound(w, "no alert store configured")
			return
		}
		events, err := s.history.RecentAlerts(r.Context(), limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to read alert log: %v", err))
			return
		}
		if events == nil {
			events = []sqlite.AlertEvent{}
		}
		httputil.WriteJSONOK(w, events)
		return
	}

	alerts := s.ctl.Alerts(limit)
	if alerts == nil {
		alerts = []zones.Alert{}
	}
	httputil.WriteJSONOK(w, alerts)
}

func (s *Server) listCameras(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if name := r.URL.Query().Get("camera"); name != "" {
		st, err := s.ctl.Camera(name)
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, st)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Cameras())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// CalibrateRequest is the body of POST /api/calibrate. Without points the
// camera's marker detector supplies them.
type CalibrateRequest struct {
	Camera string           `json:"camera"`
	Points []tactical.Point `json:"points,omitempty"`
}

// CalibrateResponse carries the camera status after the attempt.
type CalibrateResponse struct {
	Status calibration.Status `json:"status"`
	Error  string             `json:"error,omitempty"`
}

func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req CalibrateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Camera == "" {
		httputil.BadRequest(w, "camera is required")
		return
	}

	st, err := s.ctl.Calibrate(r.Context(), req.Camera, req.Points)
	switch {
	case errors.Is(err, pipeline.ErrUnknownCamera):
		httputil.NotFound(w, err.Error())
	case err != nil:
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, CalibrateResponse{Status: st, Error: err.Error()})
	default:
		httputil.WriteJSONOK(w, CalibrateResponse{Status: st})
	}
}

// ZonesRequest is the body of POST /api/zones.
type ZonesRequest struct {
	Preset string `json:"preset"`
}

// ZonesResponse describes the active preset.
type ZonesResponse struct {
	Preset  string             `json:"preset"`
	Radii   tactical.ZoneRadii `json:"radii"`
	Units   string             `json:"units"`
	Presets []string           `json:"presets"`
	Error   string             `json:"error,omitempty"`
}

func (s *Server) zonesResponse() ZonesResponse {
	name, radii := s.ctl.Preset()
	return ZonesResponse{Preset: name, Radii: radii, Units: s.units, Presets: s.ctl.Presets()}
}

// zonePreset reports the active preset on GET and switches it on POST. A
// switch that leaves some cameras uncalibrated still succeeds, with the
// camera errors reported.
func (s *Server) zonePreset(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.zonesResponse())
	case http.MethodPost:
		var req ZonesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		err := s.ctl.SetZonePreset(r.Context(), req.Preset)
		if errors.Is(err, pipeline.ErrUnknownPreset) {
			httputil.BadRequest(w, err.Error())
			return
		}
		resp := s.zonesResponse()
		if err != nil {
			resp.Error = err.Error()
		}
		httputil.WriteJSONOK(w, resp)
	default:
		httputil.MethodNotAllowed(w)
	}
}

type enabledBody struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) processing(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req enabledBody
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Enabled == nil {
			httputil.BadRequest(w, "enabled is required")
			return
		}
		s.ctl.SetProcessingEnabled(*req.Enabled)
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"enabled": s.ctl.ProcessingEnabled()})
}

type filterBody struct {
	SafeOrigin *bool `json:"safe_origin"`
}

func (s *Server) filter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req filterBody
		if !decodeBody(w, r, &req) {
			return
		}
		if req.SafeOrigin == nil {
			httputil.BadRequest(w, "safe_origin is required")
			return
		}
		s.ctl.SetSafeOriginFilter(*req.SafeOrigin)
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"safe_origin": s.ctl.SafeOriginFilter()})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.ctl.Stats())
}
