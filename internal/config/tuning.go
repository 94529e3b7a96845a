package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Centroid offset modes for discrimination.
const (
	OffsetNone   = "NONE"
	OffsetTop    = "TOP"
	OffsetBottom = "BOTTOM"
)

// Association and correlation strategy names.
const (
	AssociationGreedy    = "greedy"
	AssociationHungarian = "hungarian"
	CorrelationMidpoint  = "midpoint"
	CorrelationCentroid  = "centroid"
)

// TuningConfig represents the root configuration for the tracking core.
// Every field is optional; the Get* accessors supply defaults so partial
// files are safe.
type TuningConfig struct {
	// Zones
	ZonePresets          map[string]tactical.ZoneRadii `json:"zone_presets,omitempty"`
	ActivePreset         *string                       `json:"active_preset,omitempty"`
	HysteresisMargin     *float64                      `json:"hysteresis_margin,omitempty"`
	DiscriminationMargin *float64                      `json:"discrimination_margin,omitempty"`

	// Discrimination
	MinBlobArea          *float64 `json:"min_blob_area,omitempty"`
	MaxBlobArea          *float64 `json:"max_blob_area,omitempty"`
	AreaModelK           *float64 `json:"area_model_k,omitempty"`
	AreaModelP           *float64 `json:"area_model_p,omitempty"`
	AreaLowerFactor      *float64 `json:"area_lower_factor,omitempty"`
	AreaUpperFactor      *float64 `json:"area_upper_factor,omitempty"`
	CoverageHalfAngleDeg *float64 `json:"coverage_half_angle_deg,omitempty"`
	CentroidOffset       *string  `json:"centroid_offset,omitempty"` // NONE, TOP or BOTTOM

	// Correlation
	MergeRadius     *float64 `json:"merge_radius,omitempty"`
	CorrelationMode *string  `json:"correlation_mode,omitempty"` // midpoint or centroid

	// Tracker
	KnownGate        *float64 `json:"known_gate,omitempty"`
	UnknownGate      *float64 `json:"unknown_gate,omitempty"`
	PersistTime      *string  `json:"persist_time,omitempty"` // duration string like "30s"
	MaxHistory       *int     `json:"max_history,omitempty"`
	ProcessNoise     *float64 `json:"process_noise,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`
	TimeStep         *float64 `json:"time_step,omitempty"`
	TurnThresholdDeg *float64 `json:"turn_threshold_deg,omitempty"`
	TurnMinHistory   *int     `json:"turn_min_history,omitempty"`
	AssociationMode  *string  `json:"association_mode,omitempty"` // greedy or hungarian

	// Prediction
	PredictionMinHistory *int `json:"prediction_min_history,omitempty"`

	// Runtime
	TickInterval      *string `json:"tick_interval,omitempty"`
	SourceReadTimeout *string `json:"source_read_timeout,omitempty"`
	AlertRingSize     *int    `json:"alert_ring_size,omitempty"`
	Units             *string `json:"units,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It is what config/tuning.defaults.json contains.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	return &TuningConfig{
		ZonePresets:          tactical.DefaultZonePresets(),
		ActivePreset:         ptrString(c.GetActivePreset()),
		HysteresisMargin:     ptrFloat64(c.GetHysteresisMargin()),
		DiscriminationMargin: ptrFloat64(c.GetDiscriminationMargin()),
		MinBlobArea:          ptrFloat64(c.GetMinBlobArea()),
		MaxBlobArea:          ptrFloat64(c.GetMaxBlobArea()),
		AreaModelK:           ptrFloat64(c.GetAreaModelK()),
		AreaModelP:           ptrFloat64(c.GetAreaModelP()),
		AreaLowerFactor:      ptrFloat64(c.GetAreaLowerFactor()),
		AreaUpperFactor:      ptrFloat64(c.GetAreaUpperFactor()),
		CoverageHalfAngleDeg: ptrFloat64(c.GetCoverageHalfAngleDeg()),
		CentroidOffset:       ptrString(c.GetCentroidOffset()),
		MergeRadius:          ptrFloat64(c.GetMergeRadius()),
		CorrelationMode:      ptrString(c.GetCorrelationMode()),
		KnownGate:            ptrFloat64(c.GetKnownGate()),
		UnknownGate:          ptrFloat64(c.GetUnknownGate()),
		PersistTime:          ptrString(c.GetPersistTime().String()),
		MaxHistory:           ptrInt(c.GetMaxHistory()),
		ProcessNoise:         ptrFloat64(c.GetProcessNoise()),
		MeasurementNoise:     ptrFloat64(c.GetMeasurementNoise()),
		TimeStep:             ptrFloat64(c.GetTimeStep()),
		TurnThresholdDeg:     ptrFloat64(c.GetTurnThresholdDeg()),
		TurnMinHistory:       ptrInt(c.GetTurnMinHistory()),
		AssociationMode:      ptrString(c.GetAssociationMode()),
		PredictionMinHistory: ptrInt(c.GetPredictionMinHistory()),
		TickInterval:         ptrString(c.GetTickInterval().String()),
		SourceReadTimeout:    ptrString(c.GetSourceReadTimeout().String()),
		AlertRingSize:        ptrInt(c.GetAlertRingSize()),
		Units:                ptrString(c.GetUnits()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
// Fields omitted from the JSON file fall back to defaults via the Get*
// accessors.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/tactical/tracking/
		"../../../../" + DefaultConfigPath,    // from internal/tactical/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Every error
// wraps ErrInvalidConfig.
func (c *TuningConfig) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	for name, radii := range c.ZonePresets {
		if err := radii.Validate(); err != nil {
			return invalid("zone preset %q: %v", name, err)
		}
	}
	if c.ActivePreset != nil {
		if _, ok := c.GetZonePresets()[*c.ActivePreset]; !ok {
			return invalid("active_preset %q is not one of %v", *c.ActivePreset, c.PresetNames())
		}
	}

	nonNegative := map[string]*float64{
		"hysteresis_margin":     c.HysteresisMargin,
		"discrimination_margin": c.DiscriminationMargin,
		"min_blob_area":         c.MinBlobArea,
		"process_noise":         c.ProcessNoise,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return invalid("%s must be non-negative, got %f", name, *v)
		}
	}

	positive := map[string]*float64{
		"max_blob_area":     c.MaxBlobArea,
		"area_model_k":      c.AreaModelK,
		"area_lower_factor": c.AreaLowerFactor,
		"area_upper_factor": c.AreaUpperFactor,
		"merge_radius":      c.MergeRadius,
		"known_gate":        c.KnownGate,
		"unknown_gate":      c.UnknownGate,
		"measurement_noise": c.MeasurementNoise,
		"time_step":         c.TimeStep,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return invalid("%s must be positive, got %f", name, *v)
		}
	}

	if c.GetMinBlobArea() >= c.GetMaxBlobArea() {
		return invalid("min_blob_area %f must be below max_blob_area %f", c.GetMinBlobArea(), c.GetMaxBlobArea())
	}
	if c.GetAreaLowerFactor() >= c.GetAreaUpperFactor() {
		return invalid("area_lower_factor %f must be below area_upper_factor %f", c.GetAreaLowerFactor(), c.GetAreaUpperFactor())
	}
	if c.GetUnknownGate() <= c.GetKnownGate() {
		return invalid("unknown_gate %f must exceed known_gate %f", c.GetUnknownGate(), c.GetKnownGate())
	}
	if a := c.GetCoverageHalfAngleDeg(); a <= 0 || a >= 90 {
		return invalid("coverage_half_angle_deg must be in (0, 90), got %f", a)
	}
	if a := c.GetTurnThresholdDeg(); a <= 0 || a > 180 {
		return invalid("turn_threshold_deg must be in (0, 180], got %f", a)
	}

	switch c.GetCentroidOffset() {
	case OffsetNone, OffsetTop, OffsetBottom:
	default:
		return invalid("centroid_offset must be NONE, TOP or BOTTOM, got %q", c.GetCentroidOffset())
	}
	switch c.GetCorrelationMode() {
	case CorrelationMidpoint, CorrelationCentroid:
	default:
		return invalid("correlation_mode must be %q or %q, got %q", CorrelationMidpoint, CorrelationCentroid, c.GetCorrelationMode())
	}
	switch c.GetAssociationMode() {
	case AssociationGreedy, AssociationHungarian:
	default:
		return invalid("association_mode must be %q or %q, got %q", AssociationGreedy, AssociationHungarian, c.GetAssociationMode())
	}

	positiveInts := map[string]*int{
		"max_history":            c.MaxHistory,
		"turn_min_history":       c.TurnMinHistory,
		"prediction_min_history": c.PredictionMinHistory,
		"alert_ring_size":        c.AlertRingSize,
	}
	for name, v := range positiveInts {
		if v != nil && *v <= 0 {
			return invalid("%s must be positive, got %d", name, *v)
		}
	}
	if c.GetPredictionMinHistory() < 2 {
		return invalid("prediction_min_history must be at least 2 to fit a line, got %d", c.GetPredictionMinHistory())
	}

	durations := map[string]*string{
		"persist_time":        c.PersistTime,
		"tick_interval":       c.TickInterval,
		"source_read_timeout": c.SourceReadTimeout,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return invalid("invalid %s '%s': %v", name, *v, err)
		}
		if d <= 0 {
			return invalid("%s must be positive, got %s", name, d)
		}
	}

	if c.Units != nil {
		if err := units.Validate(*c.Units); err != nil {
			return invalid("%v", err)
		}
	}

	return nil
}

// GetZonePresets returns the configured presets, or the built-in ones.
func (c *TuningConfig) GetZonePresets() map[string]tactical.ZoneRadii {
	if len(c.ZonePresets) == 0 {
		return tactical.DefaultZonePresets()
	}
	return c.ZonePresets
}

// PresetNames returns the preset names in sorted order.
func (c *TuningConfig) PresetNames() []string {
	presets := c.GetZonePresets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetActivePreset returns the active_preset value or the default.
func (c *TuningConfig) GetActivePreset() string {
	if c.ActivePreset == nil {
		return tactical.PresetNormal
	}
	return *c.ActivePreset
}

// ActiveZoneRadii returns the radii of the active preset.
func (c *TuningConfig) ActiveZoneRadii() tactical.ZoneRadii {
	return c.GetZonePresets()[c.GetActivePreset()]
}

// GetHysteresisMargin returns the hysteresis_margin value or the default.
func (c *TuningConfig) GetHysteresisMargin() float64 {
	if c.HysteresisMargin == nil {
		return 0.2
	}
	return *c.HysteresisMargin
}

// GetDiscriminationMargin returns the discrimination_margin value or the default.
func (c *TuningConfig) GetDiscriminationMargin() float64 {
	if c.DiscriminationMargin == nil {
		return 0.25
	}
	return *c.DiscriminationMargin
}

// GetMinBlobArea returns the min_blob_area value or the default.
func (c *TuningConfig) GetMinBlobArea() float64 {
	if c.MinBlobArea == nil {
		return 100
	}
	return *c.MinBlobArea
}

// GetMaxBlobArea returns the max_blob_area value or the default.
func (c *TuningConfig) GetMaxBlobArea() float64 {
	if c.MaxBlobArea == nil {
		return 7500
	}
	return *c.MaxBlobArea
}

// GetAreaModelK returns the area_model_k value or the default.
func (c *TuningConfig) GetAreaModelK() float64 {
	if c.AreaModelK == nil {
		return 1903
	}
	return *c.AreaModelK
}

// GetAreaModelP returns the area_model_p value or the default.
func (c *TuningConfig) GetAreaModelP() float64 {
	if c.AreaModelP == nil {
		return -0.861
	}
	return *c.AreaModelP
}

// GetAreaLowerFactor returns the area_lower_factor value or the default.
func (c *TuningConfig) GetAreaLowerFactor() float64 {
	if c.AreaLowerFactor == nil {
		return 0.4
	}
	return *c.AreaLowerFactor
}

// GetAreaUpperFactor returns the area_upper_factor value or the default.
func (c *TuningConfig) GetAreaUpperFactor() float64 {
	if c.AreaUpperFactor == nil {
		return 1.8
	}
	return *c.AreaUpperFactor
}

// GetCoverageHalfAngleDeg returns the coverage_half_angle_deg value or the default.
func (c *TuningConfig) GetCoverageHalfAngleDeg() float64 {
	if c.CoverageHalfAngleDeg == nil {
		return 60
	}
	return *c.CoverageHalfAngleDeg
}

// GetCentroidOffset returns the centroid_offset value or the default.
func (c *TuningConfig) GetCentroidOffset() string {
	if c.CentroidOffset == nil {
		return OffsetNone
	}
	return strings.ToUpper(*c.CentroidOffset)
}

// GetMergeRadius returns the merge_radius value or the default.
func (c *TuningConfig) GetMergeRadius() float64 {
	if c.MergeRadius == nil {
		return 0.5
	}
	return *c.MergeRadius
}

// GetCorrelationMode returns the correlation_mode value or the default.
func (c *TuningConfig) GetCorrelationMode() string {
	if c.CorrelationMode == nil {
		return CorrelationMidpoint
	}
	return *c.CorrelationMode
}

// GetKnownGate returns the known_gate value or the default.
func (c *TuningConfig) GetKnownGate() float64 {
	if c.KnownGate == nil {
		return 1.0
	}
	return *c.KnownGate
}

// GetUnknownGate returns the unknown_gate value or the default.
func (c *TuningConfig) GetUnknownGate() float64 {
	if c.UnknownGate == nil {
		return 1.5
	}
	return *c.UnknownGate
}

// GetPersistTime parses and returns the persist_time value or the default.
func (c *TuningConfig) GetPersistTime() time.Duration {
	return parseDurationOr(c.PersistTime, 30*time.Second)
}

// GetMaxHistory returns the max_history value or the default
// (30 seconds at 50 updates per second).
func (c *TuningConfig) GetMaxHistory() int {
	if c.MaxHistory == nil {
		return 1500
	}
	return *c.MaxHistory
}

// GetProcessNoise returns the process_noise value or the default.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 1
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 1e3
	}
	return *c.MeasurementNoise
}

// GetTimeStep returns the time_step value or the default.
func (c *TuningConfig) GetTimeStep() float64 {
	if c.TimeStep == nil {
		return 0.1
	}
	return *c.TimeStep
}

// GetTurnThresholdDeg returns the turn_threshold_deg value or the default.
func (c *TuningConfig) GetTurnThresholdDeg() float64 {
	if c.TurnThresholdDeg == nil {
		return 4
	}
	return *c.TurnThresholdDeg
}

// GetTurnMinHistory returns the turn_min_history value or the default.
func (c *TuningConfig) GetTurnMinHistory() int {
	if c.TurnMinHistory == nil {
		return 10
	}
	return *c.TurnMinHistory
}

// GetAssociationMode returns the association_mode value or the default.
func (c *TuningConfig) GetAssociationMode() string {
	if c.AssociationMode == nil {
		return AssociationGreedy
	}
	return *c.AssociationMode
}

// GetPredictionMinHistory returns the prediction_min_history value or the default.
func (c *TuningConfig) GetPredictionMinHistory() int {
	if c.PredictionMinHistory == nil {
		return 20
	}
	return *c.PredictionMinHistory
}

// GetTickInterval parses and returns the tick_interval value or the default.
func (c *TuningConfig) GetTickInterval() time.Duration {
	return parseDurationOr(c.TickInterval, 100*time.Millisecond)
}

// GetSourceReadTimeout parses and returns the source_read_timeout value or the default.
func (c *TuningConfig) GetSourceReadTimeout() time.Duration {
	return parseDurationOr(c.SourceReadTimeout, 200*time.Millisecond)
}

// GetAlertRingSize returns the alert_ring_size value or the default.
func (c *TuningConfig) GetAlertRingSize() int {
	if c.AlertRingSize == nil {
		return 256
	}
	return *c.AlertRingSize
}

// GetUnits returns the units value or the default.
func (c *TuningConfig) GetUnits() string {
	if c.Units == nil {
		return units.Meters
	}
	return *c.Units
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
