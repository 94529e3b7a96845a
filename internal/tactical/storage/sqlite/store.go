package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/tactical/internal/monitoring"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/zones"
)

var (
	// ErrCalibrationNotFound is returned when no calibration is stored for
	// a camera.
	ErrCalibrationNotFound = errors.New("calibration not found")
	// ErrIntrinsicsNotFound is returned when no intrinsics are stored for
	// a camera.
	ErrIntrinsicsNotFound = errors.New("intrinsics not found")
)

// Store is the SQLite-backed calibration and alert store. Each Store has a
// session id stamped on every alert it records.
type Store struct {
	db        *sql.DB
	path      string
	sessionID string
	now       func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, sessionID: uuid.NewString(), now: time.Now}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("opened store %s (session %s)", path, s.sessionID)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for admin tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SessionID identifies this process's run in the alert log.
func (s *Store) SessionID() string {
	return s.sessionID
}

// SaveCalibration upserts the camera's calibration record.
func (s *Store) SaveCalibration(ctx context.Context, rec calibration.Record) error {
	if rec.Camera == "" {
		return errors.New("save calibration: camera name is empty")
	}
	intrJSON, err := json.Marshal(rec.Intrinsics)
	if err != nil {
		return fmt.Errorf("save calibration: marshal intrinsics: %w", err)
	}
	poseJSON, err := json.Marshal(rec.Pose)
	if err != nil {
		return fmt.Errorf("save calibration: marshal pose: %w", err)
	}
	imageJSON, err := marshalSlice(rec.ImagePoints)
	if err != nil {
		return fmt.Errorf("save calibration: marshal image points: %w", err)
	}
	objectJSON, err := marshalSlice(rec.ObjectPoints)
	if err != nil {
		return fmt.Errorf("save calibration: marshal object points: %w", err)
	}

	var calibratedAt int64
	if !rec.CalibratedAt.IsZero() {
		calibratedAt = rec.CalibratedAt.UnixNano()
	}

	query := `
		INSERT INTO camera_calibrations (
			camera, intrinsics_json, pose_json, side,
			image_points_json, object_points_json, rmse, valid,
			calibrated_at_ns, updated_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(camera) DO UPDATE SET
			intrinsics_json = excluded.intrinsics_json,
			pose_json = excluded.pose_json,
			side = excluded.side,
			image_points_json = excluded.image_points_json,
			object_points_json = excluded.object_points_json,
			rmse = excluded.rmse,
			valid = excluded.valid,
			calibrated_at_ns = excluded.calibrated_at_ns,
			updated_at_ns = excluded.updated_at_ns
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.Camera,
		string(intrJSON),
		string(poseJSON),
		string(rec.Side),
		imageJSON,
		objectJSON,
		rec.RMSE,
		rec.Valid,
		calibratedAt,
		s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save calibration for %s: %w", rec.Camera, err)
	}
	return nil
}

// LoadCalibration returns the stored record for camera, or
// ErrCalibrationNotFound.
func (s *Store) LoadCalibration(ctx context.Context, camera string) (calibration.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT camera, intrinsics_json, pose_json, side,
			image_points_json, object_points_json, rmse, valid, calibrated_at_ns
		FROM camera_calibrations WHERE camera = ?
	`, camera)
	rec, err := scanCalibration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calibration.Record{}, fmt.Errorf("camera %s: %w", camera, ErrCalibrationNotFound)
	}
	if err != nil {
		return calibration.Record{}, fmt.Errorf("load calibration for %s: %w", camera, err)
	}
	return rec, nil
}

// ListCalibrations returns every stored record ordered by camera name.
func (s *Store) ListCalibrations(ctx context.Context) ([]calibration.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT camera, intrinsics_json, pose_json, side,
			image_points_json, object_points_json, rmse, valid, calibrated_at_ns
		FROM camera_calibrations ORDER BY camera
	`)
	if err != nil {
		return nil, fmt.Errorf("list calibrations: %w", err)
	}
	defer rows.Close()

	var out []calibration.Record
	for rows.Next() {
		rec, err := scanCalibration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calibration: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCalibration(row scanner) (calibration.Record, error) {
	var (
		rec                                       calibration.Record
		intrJSON, poseJSON, imageJSON, objectJSON string
		side                                      string
		calibratedAt                              int64
	)
	if err := row.Scan(&rec.Camera, &intrJSON, &poseJSON, &side,
		&imageJSON, &objectJSON, &rec.RMSE, &rec.Valid, &calibratedAt); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(intrJSON), &rec.Intrinsics); err != nil {
		return rec, fmt.Errorf("decode intrinsics: %w", err)
	}
	if err := json.Unmarshal([]byte(poseJSON), &rec.Pose); err != nil {
		return rec, fmt.Errorf("decode pose: %w", err)
	}
	if err := json.Unmarshal([]byte(imageJSON), &rec.ImagePoints); err != nil {
		return rec, fmt.Errorf("decode image points: %w", err)
	}
	if err := json.Unmarshal([]byte(objectJSON), &rec.ObjectPoints); err != nil {
		return rec, fmt.Errorf("decode object points: %w", err)
	}
	rec.Side = calibration.Side(side)
	if calibratedAt != 0 {
		rec.CalibratedAt = time.Unix(0, calibratedAt).UTC()
	}
	return rec, nil
}

// SaveIntrinsics upserts a camera's intrinsics. They are validated first.
func (s *Store) SaveIntrinsics(ctx context.Context, camera string, intr calibration.Intrinsics) error {
	if err := intr.Validate(); err != nil {
		return fmt.Errorf("save intrinsics for %s: %w", camera, err)
	}
	matrixJSON, err := json.Marshal(intr.Matrix)
	if err != nil {
		return fmt.Errorf("save intrinsics: marshal matrix: %w", err)
	}
	distJSON, err := marshalSlice(intr.Distortion)
	if err != nil {
		return fmt.Errorf("save intrinsics: marshal distortion: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO camera_intrinsics (camera, matrix_json, distortion_json, updated_at_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(camera) DO UPDATE SET
			matrix_json = excluded.matrix_json,
			distortion_json = excluded.distortion_json,
			updated_at_ns = excluded.updated_at_ns
	`, camera, string(matrixJSON), distJSON, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("save intrinsics for %s: %w", camera, err)
	}
	return nil
}

// LoadIntrinsics returns the stored intrinsics for camera, or
// ErrIntrinsicsNotFound.
func (s *Store) LoadIntrinsics(ctx context.Context, camera string) (calibration.Intrinsics, error) {
	var matrixJSON, distJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT matrix_json, distortion_json FROM camera_intrinsics WHERE camera = ?`, camera,
	).Scan(&matrixJSON, &distJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return calibration.Intrinsics{}, fmt.Errorf("camera %s: %w", camera, ErrIntrinsicsNotFound)
	}
	if err != nil {
		return calibration.Intrinsics{}, fmt.Errorf("load intrinsics for %s: %w", camera, err)
	}

	var intr calibration.Intrinsics
	if err := json.Unmarshal([]byte(matrixJSON), &intr.Matrix); err != nil {
		return intr, fmt.Errorf("decode matrix for %s: %w", camera, err)
	}
	if err := json.Unmarshal([]byte(distJSON), &intr.Distortion); err != nil {
		return intr, fmt.Errorf("decode distortion for %s: %w", camera, err)
	}
	return intr, nil
}

// AlertEvent is one row of the alert log.
type AlertEvent struct {
	SessionID string `json:"session_id"`
	zones.Alert
}

// RecordAlert appends the alert to the log under this store's session.
// An alert without an id gets a fresh uuid.
func (s *Store) RecordAlert(ctx context.Context, a zones.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var cx, cy sql.NullFloat64
	if a.Crossing != nil {
		cx = sql.NullFloat64{Float64: a.Crossing.X, Valid: true}
		cy = sql.NullFloat64{Float64: a.Crossing.Y, Valid: true}
	}
	at := a.Time
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_events (
			alert_id, session_id, track_id, kind, message,
			x, y, crossing_x, crossing_y, occurred_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		s.sessionID,
		a.TrackID,
		string(a.Kind),
		a.Message,
		a.Position.X,
		a.Position.Y,
		cx,
		cy,
		at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record alert %s: %w", a.ID, err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts from every session, newest
// first. limit <= 0 means no limit.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error) {
	query := `
		SELECT alert_id, session_id, track_id, kind, message,
			x, y, crossing_x, crossing_y, occurred_at_ns
		FROM alert_events
		ORDER BY occurred_at_ns DESC, rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertEvent
	for rows.Next() {
		var (
			ev     AlertEvent
			kind   string
			cx, cy sql.NullFloat64
			at     int64
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.TrackID, &kind, &ev.Message,
			&ev.Position.X, &ev.Position.Y, &cx, &cy, &at); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		ev.Kind = zones.Kind(kind)
		if cx.Valid && cy.Valid {
			ev.Crossing = &tactical.Point{X: cx.Float64, Y: cy.Float64}
		}
		ev.Time = time.Unix(0, at).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// marshalSlice encodes a nil slice as [] rather than null.
func marshalSlice[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}
