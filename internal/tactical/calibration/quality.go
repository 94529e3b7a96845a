package calibration

import "math"

// Quality grades a calibration by its reprojection error in pixels.
type Quality string

const (
	// QualityExcellent indicates RMSE < 0.5px.
	QualityExcellent Quality = "excellent"
	// QualityGood indicates RMSE 0.5-1.5px, good for tracking.
	QualityGood Quality = "good"
	// QualityFair indicates RMSE 1.5-3px, usable but consider recalibration.
	QualityFair Quality = "fair"
	// QualityPoor indicates RMSE > 3px, markers were likely mis-ordered or mis-detected.
	QualityPoor Quality = "poor"
	// QualityUnknown indicates RMSE was not computed.
	QualityUnknown Quality = "unknown"
)

// GradeReprojection maps a pixel RMSE to a Quality.
func GradeReprojection(rmse float64) Quality {
	switch {
	case math.IsNaN(rmse) || math.IsInf(rmse, 0) || rmse < 0:
		return QualityUnknown
	case rmse < 0.5:
		return QualityExcellent
	case rmse < 1.5:
		return QualityGood
	case rmse < 3:
		return QualityFair
	default:
		return QualityPoor
	}
}
