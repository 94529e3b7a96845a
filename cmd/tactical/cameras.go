package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/banshee-data/tactical/internal/security"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/tactical/source"
	"github.com/banshee-data/tactical/internal/tactical/storage/sqlite"
)

// parseCameraList splits a comma-separated camera list, rejecting blanks
// and duplicates.
func parseCameraList(s string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("camera %q listed twice", name)
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errors.New("at least one camera is required")
	}
	return names, nil
}

// intrinsicsFiles returns the matrix and distortion file paths for a camera
// in dir. The distortion path is empty when that file is absent.
func intrinsicsFiles(dir, camera string) (string, string, error) {
	matrix, err := security.CameraFile(dir, camera, "_matrix.txt")
	if err != nil {
		return "", "", err
	}
	dist, err := security.CameraFile(dir, camera, "_distortion.txt")
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(dist); err != nil {
		dist = ""
	}
	return matrix, dist, nil
}

// intrinsicsStore is the part of the store camera setup uses.
type intrinsicsStore interface {
	SaveIntrinsics(ctx context.Context, camera string, intr calibration.Intrinsics) error
	LoadIntrinsics(ctx context.Context, camera string) (calibration.Intrinsics, error)
	LoadCalibration(ctx context.Context, camera string) (calibration.Record, error)
}

// loadIntrinsics prefers text files in dir, saving them to the store, and
// falls back to the store.
func loadIntrinsics(ctx context.Context, st intrinsicsStore, dir, camera string) (calibration.Intrinsics, error) {
	if dir != "" {
		matrix, dist, err := intrinsicsFiles(dir, camera)
		if err != nil {
			return calibration.Intrinsics{}, err
		}
		if _, statErr := os.Stat(matrix); statErr == nil {
			intr, err := calibration.LoadIntrinsicsFiles(matrix, dist)
			if err != nil {
				return calibration.Intrinsics{}, fmt.Errorf("camera %s: %w", camera, err)
			}
			if err := st.SaveIntrinsics(ctx, camera, intr); err != nil {
				log.Printf("camera %s: failed to save intrinsics: %v", camera, err)
			}
			return intr, nil
		}
	}
	intr, err := st.LoadIntrinsics(ctx, camera)
	if errors.Is(err, sqlite.ErrIntrinsicsNotFound) {
		return calibration.Intrinsics{}, fmt.Errorf("camera %s: no intrinsics in %q or the store", camera, dir)
	}
	return intr, err
}

// buildCameras creates one pipeline camera per name, in order, fed from
// the hub. A stored calibration is restored and re-solved for the active
// radii. A camera that cannot be set up is logged and left out; the
// others carry on. It fails only when no camera is usable.
func buildCameras(ctx context.Context, st intrinsicsStore, hub *source.Hub, names []string, dir string, radii tactical.ZoneRadii) ([]*pipeline.Camera, error) {
	var cams []*pipeline.Camera
	var errs []error
	for _, name := range names {
		cam, err := buildCamera(ctx, st, hub, name, dir, radii)
		if err != nil {
			log.Printf("camera %s disabled: %v", name, err)
			errs = append(errs, err)
			continue
		}
		cams = append(cams, cam)
	}
	if len(cams) == 0 {
		return nil, fmt.Errorf("no usable camera: %w", errors.Join(errs...))
	}
	return cams, nil
}

func buildCamera(ctx context.Context, st intrinsicsStore, hub *source.Hub, name, dir string, radii tactical.ZoneRadii) (*pipeline.Camera, error) {
	latest, ok := hub.Camera(name)
	if !ok {
		return nil, fmt.Errorf("camera %s has no frame buffer", name)
	}
	intr, err := loadIntrinsics(ctx, st, dir, name)
	if err != nil {
		return nil, err
	}
	engine := calibration.NewEngine(name, intr, radii)

	rec, err := st.LoadCalibration(ctx, name)
	switch {
	case errors.Is(err, sqlite.ErrCalibrationNotFound):
		log.Printf("camera %s: no stored calibration", name)
	case err != nil:
		return nil, fmt.Errorf("camera %s: load calibration: %w", name, err)
	default:
		rec.Intrinsics = intr
		if err := engine.Restore(rec); err != nil {
			log.Printf("camera %s: stored calibration rejected: %v", name, err)
		} else if err := engine.SetZoneRadii(radii); err != nil {
			log.Printf("camera %s: stored calibration does not re-solve: %v", name, err)
		} else {
			log.Printf("camera %s: restored calibration from %s", name, rec.CalibratedAt.Format("2006-01-02 15:04:05"))
		}
	}
	return &pipeline.Camera{Name: name, Engine: engine, Source: latest, Markers: latest}, nil
}
