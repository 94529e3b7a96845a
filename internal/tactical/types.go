package tactical

import (
	"fmt"
	"math"
	"time"
)

// Point is a 2-D coordinate. Ground-plane points are in world length units
// with the origin at the protected position; pixel points are in image
// coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Norm returns the distance of p from the origin.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Mid returns the midpoint of p and q.
func (p Point) Mid(q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// IsFinite reports whether both coordinates are finite.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// Blob is one detection reported by the vision front end: a pixel centroid
// and the apparent size of its contour.
type Blob struct {
	Centroid Point   `json:"centroid"`
	Area     float64 `json:"area"`
	Radius   float64 `json:"radius"`
}

// Frame is one vision front-end output for a camera: the blobs found in a
// single image and, when the front end can see them, the calibration
// marker centroids in marker order.
type Frame struct {
	Camera  string    `json:"camera"`
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Blobs   []Blob    `json:"blobs"`
	Markers []Point   `json:"markers,omitempty"`
}

// Detection is a Blob tagged with the camera that saw it.
type Detection struct {
	CameraID string
	Blob
}

// ValidatedPosition is a ground-plane candidate that survived discrimination.
type ValidatedPosition struct {
	Position Point
	CameraID string
}

// ZoneRadii are the three concentric boundaries around the origin.
// Safe < Alert < Predict.
type ZoneRadii struct {
	Safe    float64 `json:"safe"`
	Alert   float64 `json:"alert"`
	Predict float64 `json:"predict"`
}

// Max returns the largest of the three radii.
func (z ZoneRadii) Max() float64 {
	return math.Max(z.Safe, math.Max(z.Alert, z.Predict))
}

// Validate checks that the radii are positive and strictly increasing.
func (z ZoneRadii) Validate() error {
	if z.Safe <= 0 {
		return fmt.Errorf("safe radius must be positive, got %g", z.Safe)
	}
	if z.Alert <= z.Safe {
		return fmt.Errorf("alert radius %g must exceed safe radius %g", z.Alert, z.Safe)
	}
	if z.Predict <= z.Alert {
		return fmt.Errorf("predict radius %g must exceed alert radius %g", z.Predict, z.Alert)
	}
	return nil
}

// ZoneFlags are a track's one-shot alert latches. Each is set when the
// matching alert fires and cleared when the track comes back inside the
// boundary by more than the hysteresis margin.
type ZoneFlags struct {
	LeftSafe   bool `json:"left_safe"`
	LeftAlert  bool `json:"left_alert"`
	HitPredict bool `json:"hit_predict"`
}

// Named zone presets.
const (
	PresetNormal = "NORMAL"
	PresetSmall  = "SMALL"
)

// DefaultZonePresets returns the built-in presets, used when the tuning
// file does not define any.
func DefaultZonePresets() map[string]ZoneRadii {
	return map[string]ZoneRadii{
		PresetNormal: {Safe: 5, Alert: 10, Predict: 12},
		PresetSmall:  {Safe: 5, Alert: 6, Predict: 7},
	}
}
