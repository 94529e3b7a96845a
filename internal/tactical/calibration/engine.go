package calibration

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/tactical/internal/tactical"
)

// Status is the operator-facing summary of one camera's calibration.
type Status struct {
	Camera       string    `json:"camera"`
	Calibrated   bool      `json:"calibrated"`
	Side         Side      `json:"side,omitempty"`
	RMSE         float64   `json:"rmse"`
	Quality      Quality   `json:"quality"`
	LastError    string    `json:"last_error,omitempty"`
	CalibratedAt time.Time `json:"calibrated_at,omitempty"`
}

// Engine owns one camera's Record. Calibrate and SetZoneRadii are the only
// mutators; BackProject may be called concurrently with them.
type Engine struct {
	mu      sync.RWMutex
	rec     Record
	radii   tactical.ZoneRadii
	lastErr error
	now     func() time.Time
}

// NewEngine creates an uncalibrated engine for a camera.
func NewEngine(camera string, intr Intrinsics, radii tactical.ZoneRadii) *Engine {
	return &Engine{
		rec:   Record{Camera: camera, Intrinsics: intr.Clone()},
		radii: radii,
		now:   time.Now,
	}
}

// SetNowFunc overrides the timestamp source used for CalibratedAt.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Camera returns the camera name.
func (e *Engine) Camera() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rec.Camera
}

// Calibrate solves the camera pose from six marker centroids, ordered as
// MarkerLayout orders the ground markers. On any failure the record is
// marked invalid and the previous pose and correspondences are kept.
func (e *Engine) Calibrate(points []tactical.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calibrateLocked(points)
}

func (e *Engine) calibrateLocked(points []tactical.Point) error {
	camera := e.rec.Camera
	if len(points) != RequiredMarkers {
		err := fmt.Errorf("%w: camera %s got %d marker points, need %d", ErrInsufficientPoints, camera, len(points), RequiredMarkers)
		e.fail(err)
		return err
	}
	if err := e.rec.Intrinsics.Validate(); err != nil {
		err = fmt.Errorf("%w: camera %s intrinsics: %v", ErrSolveFailed, camera, err)
		e.fail(err)
		return err
	}

	side := InferSide(points)
	object := MarkerLayout(e.radii, side)
	pose, err := SolvePlanarPnP(object, points, e.rec.Intrinsics)
	if err != nil {
		err = fmt.Errorf("camera %s: %w", camera, err)
		e.fail(err)
		return err
	}

	rmse := ReprojectionRMSE(pose, object, points, e.rec.Intrinsics)
	e.rec.Pose = pose
	e.rec.Side = side
	e.rec.ImagePoints = append([]tactical.Point(nil), points...)
	e.rec.ObjectPoints = object
	e.rec.RMSE = rmse
	e.rec.Valid = true
	e.rec.CalibratedAt = e.now()
	e.lastErr = nil

	q := GradeReprojection(rmse)
	tactical.Diagf("[Calibration] camera %s calibrated (%s side, rmse=%.3fpx, quality=%s)", camera, side, rmse, q)
	if q == QualityPoor {
		tactical.Opsf("[Calibration] camera %s calibration quality is poor (rmse=%.3fpx); check marker order", camera, rmse)
	}
	return nil
}

func (e *Engine) fail(err error) {
	e.rec.Valid = false
	e.lastErr = err
	tactical.Opsf("[Calibration] %v", err)
}

// SetZoneRadii changes the marker geometry and, if the camera has been
// calibrated before, re-solves from the last image points.
func (e *Engine) SetZoneRadii(radii tactical.ZoneRadii) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.radii = radii
	if len(e.rec.ImagePoints) == 0 {
		return nil
	}
	return e.calibrateLocked(append([]tactical.Point(nil), e.rec.ImagePoints...))
}

// SetIntrinsics replaces the optics and re-solves from the last image
// points if any.
func (e *Engine) SetIntrinsics(intr Intrinsics) error {
	if err := intr.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Intrinsics = intr.Clone()
	if len(e.rec.ImagePoints) == 0 {
		return nil
	}
	return e.calibrateLocked(append([]tactical.Point(nil), e.rec.ImagePoints...))
}

// Restore installs a previously saved record, e.g. loaded from storage.
func (e *Engine) Restore(rec Record) error {
	if err := rec.Intrinsics.Validate(); err != nil {
		return fmt.Errorf("restore camera %s: %w", rec.Camera, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	camera := e.rec.Camera
	e.rec = rec.Clone()
	e.rec.Camera = camera
	e.lastErr = nil
	return nil
}

// Record returns a copy of the current record.
func (e *Engine) Record() Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rec.Clone()
}

// Valid reports whether the camera currently has a usable pose.
func (e *Engine) Valid() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rec.Valid
}

// BackProject maps a pixel to the ground plane using the current record.
func (e *Engine) BackProject(px tactical.Point) (tactical.Point, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rec.BackProject(px)
}

// Status summarises the engine for operators.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Status{
		Camera:     e.rec.Camera,
		Calibrated: e.rec.Valid,
		Quality:    e.rec.Quality(),
	}
	if e.rec.Valid {
		s.Side = e.rec.Side
		s.RMSE = e.rec.RMSE
		s.CalibratedAt = e.rec.CalibratedAt
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}
