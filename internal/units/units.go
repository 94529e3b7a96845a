// Package units provides shared constants and conversion for the length
// unit the zone radii and marker distances are expressed in.
package units

import "fmt"

// Unit constants
const (
	Meters = "m"
	Feet   = "ft"
	Yards  = "yd"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Meters, Feet, Yards}

// metersPer holds the length of one unit in meters.
var metersPer = map[string]float64{
	Meters: 1,
	Feet:   0.3048,
	Yards:  0.9144,
}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	_, ok := metersPer[unit]
	return ok
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, ft, yd"
}

// Validate returns an error naming the valid units when unit is unknown.
func Validate(unit string) error {
	if !IsValid(unit) {
		return fmt.Errorf("unknown length unit %q (valid: %s)", unit, GetValidUnitsString())
	}
	return nil
}

// ConvertLength converts a length between two units.
// Unknown units are treated as meters.
func ConvertLength(v float64, from, to string) float64 {
	f, ok := metersPer[from]
	if !ok {
		f = 1
	}
	t, ok := metersPer[to]
	if !ok {
		t = 1
	}
	return v * f / t
}

// SpeedLabel returns the per-second speed label for a length unit.
func SpeedLabel(unit string) string {
	if !IsValid(unit) {
		unit = Meters
	}
	return unit + "/s"
}
