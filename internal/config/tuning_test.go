package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tactical/internal/tactical"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetKnownGate() != 1.0 {
		t.Errorf("GetKnownGate() = %f, want 1.0", cfg.GetKnownGate())
	}
	if cfg.GetUnknownGate() != 1.5 {
		t.Errorf("GetUnknownGate() = %f, want 1.5", cfg.GetUnknownGate())
	}
	if cfg.GetPersistTime() != 30*time.Second {
		t.Errorf("GetPersistTime() = %v, want 30s", cfg.GetPersistTime())
	}
	if cfg.GetMaxHistory() != 1500 {
		t.Errorf("GetMaxHistory() = %d, want 1500", cfg.GetMaxHistory())
	}
	if cfg.GetMeasurementNoise() != 1e3 {
		t.Errorf("GetMeasurementNoise() = %f, want 1000", cfg.GetMeasurementNoise())
	}
	if cfg.GetPredictionMinHistory() != 20 {
		t.Errorf("GetPredictionMinHistory() = %d, want 20", cfg.GetPredictionMinHistory())
	}
	if cfg.GetCentroidOffset() != OffsetNone {
		t.Errorf("GetCentroidOffset() = %q, want NONE", cfg.GetCentroidOffset())
	}
	assert.Equal(t, tactical.ZoneRadii{Safe: 5, Alert: 10, Predict: 12}, cfg.ActiveZoneRadii())
	assert.Equal(t, []string{tactical.PresetNormal, tactical.PresetSmall}, cfg.PresetNames())
	assert.NoError(t, cfg.Validate())
}

func TestDefaultTuningConfigMatchesFile(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultTuningConfig(), fromFile); diff != "" {
		t.Errorf("config/tuning.defaults.json drifted from built-in defaults (-builtin +file):\n%s", diff)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "test_config.json", `{
  "zone_presets": {"WIDE": {"safe": 8, "alert": 15, "predict": 20}},
  "active_preset": "WIDE",
  "known_gate": 0.8,
  "persist_time": "10s",
  "centroid_offset": "bottom",
  "association_mode": "hungarian"
}`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, tactical.ZoneRadii{Safe: 8, Alert: 15, Predict: 20}, cfg.ActiveZoneRadii())
	assert.Equal(t, 0.8, cfg.GetKnownGate())
	assert.Equal(t, 10*time.Second, cfg.GetPersistTime())
	assert.Equal(t, OffsetBottom, cfg.GetCentroidOffset())
	assert.Equal(t, AssociationHungarian, cfg.GetAssociationMode())
	// Omitted fields keep their defaults.
	assert.Equal(t, 1.5, cfg.GetUnknownGate())
	assert.Equal(t, 0.5, cfg.GetMergeRadius())
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"wrong extension", "config.yaml", `{}`},
		{"malformed JSON", "bad.json", `{"known_gate": "wide"`},
		{"unknown field", "unknown.json", `{"kown_gate": 1}`},
		{"invalid value", "invalid.json", `{"merge_radius": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("LoadTuningConfig(%s) expected error", tt.name)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadTuningConfig("/nonexistent/path/to/config.json"); err == nil {
			t.Error("Expected error when loading missing file, got nil")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{"empty", &TuningConfig{}, false},
		{"defaults", DefaultTuningConfig(), false},
		{"unknown active preset", &TuningConfig{ActivePreset: ptrString("HUGE")}, true},
		{"preset not increasing", &TuningConfig{ZonePresets: map[string]tactical.ZoneRadii{"NORMAL": {Safe: 5, Alert: 4, Predict: 12}}}, true},
		{"unknown gate not wider", &TuningConfig{KnownGate: ptrFloat64(2), UnknownGate: ptrFloat64(1.5)}, true},
		{"negative hysteresis", &TuningConfig{HysteresisMargin: ptrFloat64(-0.1)}, true},
		{"area bounds inverted", &TuningConfig{MinBlobArea: ptrFloat64(8000)}, true},
		{"area factors inverted", &TuningConfig{AreaLowerFactor: ptrFloat64(2)}, true},
		{"coverage angle out of range", &TuningConfig{CoverageHalfAngleDeg: ptrFloat64(90)}, true},
		{"bad offset", &TuningConfig{CentroidOffset: ptrString("LEFT")}, true},
		{"bad correlation mode", &TuningConfig{CorrelationMode: ptrString("dbscan")}, true},
		{"bad association mode", &TuningConfig{AssociationMode: ptrString("auction")}, true},
		{"prediction history too short", &TuningConfig{PredictionMinHistory: ptrInt(1)}, true},
		{"zero max history", &TuningConfig{MaxHistory: ptrInt(0)}, true},
		{"unparseable duration", &TuningConfig{PersistTime: ptrString("forever")}, true},
		{"negative duration", &TuningConfig{TickInterval: ptrString("-1s")}, true},
		{"bad units", &TuningConfig{Units: ptrString("furlong")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestDurationFallback(t *testing.T) {
	cfg := &TuningConfig{SourceReadTimeout: ptrString("not-a-duration")}
	if got := cfg.GetSourceReadTimeout(); got != 200*time.Millisecond {
		t.Errorf("GetSourceReadTimeout() = %v, want default 200ms on parse error", got)
	}
}
