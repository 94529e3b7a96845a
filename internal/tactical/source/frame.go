package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/tactical/internal/tactical"
)

// ErrInvalidFrame is returned for frames that decode but cannot be used.
var ErrInvalidFrame = errors.New("invalid frame")

// MaxDatagramSize bounds a single encoded frame.
const MaxDatagramSize = 64 * 1024

// DecodeFrame parses one JSON-encoded frame.
func DecodeFrame(data []byte) (tactical.Frame, error) {
	var f tactical.Frame
	if len(data) > MaxDatagramSize {
		return f, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidFrame, len(data), MaxDatagramSize)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return tactical.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if err := validateFrame(f); err != nil {
		return tactical.Frame{}, err
	}
	return f, nil
}

// EncodeFrame is the inverse of DecodeFrame.
func EncodeFrame(f tactical.Frame) ([]byte, error) {
	return json.Marshal(f)
}

func validateFrame(f tactical.Frame) error {
	if f.Camera == "" {
		return fmt.Errorf("%w: missing camera", ErrInvalidFrame)
	}
	for i, b := range f.Blobs {
		if !b.Centroid.IsFinite() {
			return fmt.Errorf("%w: blob %d centroid %v", ErrInvalidFrame, i, b.Centroid)
		}
		if b.Area < 0 || math.IsNaN(b.Area) || math.IsInf(b.Area, 0) {
			return fmt.Errorf("%w: blob %d area %g", ErrInvalidFrame, i, b.Area)
		}
		if b.Radius < 0 || math.IsNaN(b.Radius) || math.IsInf(b.Radius, 0) {
			return fmt.Errorf("%w: blob %d radius %g", ErrInvalidFrame, i, b.Radius)
		}
	}
	for i, m := range f.Markers {
		if !m.IsFinite() {
			return fmt.Errorf("%w: marker %d %v", ErrInvalidFrame, i, m)
		}
	}
	return nil
}
