package units

import (
	"math"
	"testing"
)

func TestConvertLength(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		from, to string
		expected float64
	}{
		{"meters to feet", 10, Meters, Feet, 32.8084},
		{"feet to meters", 10, Feet, Meters, 3.048},
		{"yards to feet", 1, Yards, Feet, 3},
		{"identity", 12, Yards, Yards, 12},
		{"unknown source treated as meters", 1, "furlong", Meters, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertLength(tt.v, tt.from, tt.to)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("ConvertLength(%f, %s, %s) = %f, want %f", tt.v, tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{Meters, true},
		{Feet, true},
		{Yards, true},
		{"km", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
			if err := Validate(tt.unit); (err == nil) != tt.expected {
				t.Errorf("Validate(%q) = %v", tt.unit, err)
			}
		})
	}
}

func TestSpeedLabel(t *testing.T) {
	if got := SpeedLabel(Feet); got != "ft/s" {
		t.Errorf("SpeedLabel(ft) = %q", got)
	}
	if got := SpeedLabel("bogus"); got != "m/s" {
		t.Errorf("SpeedLabel(bogus) = %q", got)
	}
}
