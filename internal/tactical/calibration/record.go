package calibration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/tactical/internal/tactical"
)

// ErrNoGroundIntersection is returned when a pixel's ray never reaches the
// ground in front of the camera (at or above the horizon).
var ErrNoGroundIntersection = errors.New("pixel ray does not meet the ground plane")

// Record is one camera's calibration state. The zero value is an
// uncalibrated record.
type Record struct {
	Camera       string           `json:"camera"`
	Intrinsics   Intrinsics       `json:"intrinsics"`
	Pose         Pose             `json:"pose"`
	Valid        bool             `json:"valid"`
	Side         Side             `json:"side,omitempty"`
	ImagePoints  []tactical.Point `json:"image_points,omitempty"`
	ObjectPoints []Vec3           `json:"object_points,omitempty"`
	RMSE         float64          `json:"rmse"`
	CalibratedAt time.Time        `json:"calibrated_at"`
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	r.Intrinsics = r.Intrinsics.Clone()
	r.ImagePoints = append([]tactical.Point(nil), r.ImagePoints...)
	r.ObjectPoints = append([]Vec3(nil), r.ObjectPoints...)
	return r
}

// Quality grades the record's reprojection error.
func (r Record) Quality() Quality {
	if !r.Valid {
		return QualityUnknown
	}
	return GradeReprojection(r.RMSE)
}

// Project maps a world point to pixel coordinates through the record's
// pose and optics.
func (r Record) Project(w Vec3) (tactical.Point, error) {
	px, ok := r.Intrinsics.Pixel(r.Pose.Apply(w))
	if !ok {
		return tactical.Point{}, fmt.Errorf("point %v is behind camera %s", w, r.Camera)
	}
	return px, nil
}

// BackProject maps a pixel to the ground plane. With the camera ray m and
// pose (R, t), the world point is Rᵀ(s·m - t); s is chosen so its z is 0.
func (r Record) BackProject(px tactical.Point) (tactical.Point, error) {
	if !r.Valid {
		return tactical.Point{}, ErrNotCalibrated
	}
	ray := r.Intrinsics.Normalize(px)

	Rt := r.Pose.Rotation.Dense().T()
	var dir, origin mat.VecDense
	dir.MulVec(Rt, mat.NewVecDense(3, ray.slice()))
	origin.MulVec(Rt, mat.NewVecDense(3, r.Pose.Translation.slice()))

	if math.Abs(dir.AtVec(2)) < 1e-12 {
		return tactical.Point{}, ErrNoGroundIntersection
	}
	s := origin.AtVec(2) / dir.AtVec(2)
	if s <= 0 {
		return tactical.Point{}, ErrNoGroundIntersection
	}
	return tactical.Point{
		X: s*dir.AtVec(0) - origin.AtVec(0),
		Y: s*dir.AtVec(1) - origin.AtVec(1),
	}, nil
}
