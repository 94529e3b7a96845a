// Command replay-report runs a recorded session through the tracking
// pipeline offline and writes a session plot and a JSON summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/report"
	"github.com/banshee-data/tactical/internal/security"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/tactical/source"
	"github.com/banshee-data/tactical/internal/timeutil"
)

// Config holds the replay options.
type Config struct {
	Input         string
	PcapPort      int
	ConfigPath    string
	Preset        string
	IntrinsicsDir string
	OutputDir     string
	Title         string
	SizeInches    float64
	Verbose       bool
}

// Result is written next to the plot as <name>.json.
type Result struct {
	Input        string               `json:"input"`
	Cameras      []string             `json:"cameras"`
	Calibrations int                  `json:"calibrations"`
	Summary      report.Summary       `json:"summary"`
	Stats        pipeline.Stats       `json:"stats"`
	FinalTracks  int                  `json:"final_tracks"`
	CameraStatus []calibration.Status `json:"camera_status"`
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.Input, "in", "", "Recording to replay (.jsonl or .pcap)")
	flag.IntVar(&cfg.PcapPort, "pcap-port", 7300, "UDP destination port to extract from pcap input")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config JSON (default: built-in defaults)")
	flag.StringVar(&cfg.Preset, "preset", "", "Zone preset to replay with (default: config active preset)")
	flag.StringVar(&cfg.IntrinsicsDir, "intrinsics-dir", "", "Directory holding <camera>_matrix.txt files (default: built-in pinhole)")
	flag.StringVar(&cfg.OutputDir, "out", ".", "Output directory for the plot and summary")
	flag.StringVar(&cfg.Title, "title", "", "Plot title (default: input file name)")
	flag.Float64Var(&cfg.SizeInches, "size", 8, "Plot size in inches")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable diagnostic logging")
	flag.Parse()

	if cfg.Input == "" {
		log.Fatal("-in is required")
	}
	if err := run(context.Background(), cfg); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg Config) error {
	if cfg.Verbose {
		tactical.SetLogWriters(tactical.LogWriters{Ops: os.Stderr, Diag: os.Stderr})
	} else {
		tactical.SetLogWriters(tactical.LogWriters{Ops: os.Stderr})
	}

	tuning := config.DefaultTuningConfig()
	if cfg.ConfigPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(cfg.ConfigPath); err != nil {
			return err
		}
	}
	if cfg.Preset != "" {
		tuning.ActivePreset = &cfg.Preset
	}

	ticks, err := readRecording(cfg.Input, cfg.PcapPort)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return fmt.Errorf("%s holds no frames", cfg.Input)
	}
	names := cameraNames(ticks)

	pcfg, err := pipeline.ConfigFromTuning(tuning)
	if err != nil {
		return err
	}
	var cams []*pipeline.Camera
	for _, name := range names {
		intr, err := cameraIntrinsics(cfg.IntrinsicsDir, name)
		if err != nil {
			return err
		}
		cams = append(cams, &pipeline.Camera{Name: name, Engine: calibration.NewEngine(name, intr, tuning.ActiveZoneRadii())})
	}
	proc, err := pipeline.New(pcfg, cams, timeutil.NewMockClock(ticks[0].Time))
	if err != nil {
		return err
	}

	rec := report.NewRecorder()
	calibrations := replay(ctx, proc, ticks, rec)

	base := strings.TrimSuffix(filepath.Base(cfg.Input), filepath.Ext(cfg.Input))
	title := cfg.Title
	if title == "" {
		title = base
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	pngPath := filepath.Join(cfg.OutputDir, security.SanitizeFilename(base)+".png")
	jsonPath := filepath.Join(cfg.OutputDir, security.SanitizeFilename(base)+".json")
	for _, p := range []string{pngPath, jsonPath} {
		if err := security.ValidateExportPath(p); err != nil {
			return err
		}
	}

	if err := rec.SavePNG(pngPath, title, vg.Length(cfg.SizeInches)*vg.Inch); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	result := Result{
		Input:        cfg.Input,
		Cameras:      names,
		Calibrations: calibrations,
		Summary:      rec.Summary(),
		Stats:        proc.Stats(),
		FinalTracks:  len(proc.Snapshot(true).Tracks),
		CameraStatus: proc.Cameras(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return err
	}
	log.Printf("✓ %d ticks, %d tracks, %d alerts: %s", result.Summary.Ticks, result.Summary.Tracks, result.Stats.Alerts, pngPath)
	return nil
}

// replay feeds every tick through proc at its recorded time. A camera
// is calibrated from the first markers it reports while uncalibrated.
// It returns the number of successful calibrations.
func replay(ctx context.Context, proc *pipeline.Processor, ticks []source.Tick, rec *report.Recorder) int {
	calibrations := 0
	for _, t := range ticks {
		for _, f := range t.Frames {
			if len(f.Markers) == 0 {
				continue
			}
			if st, err := proc.Camera(f.Camera); err != nil || st.Calibrated {
				continue
			}
			if _, err := proc.Calibrate(ctx, f.Camera, f.Markers); err != nil {
				log.Printf("camera %s: calibration from recorded markers failed: %v", f.Camera, err)
				continue
			}
			calibrations++
		}
		res := proc.ProcessFrames(ctx, t.Time, t.Frames)
		rec.AddAlerts(res.Alerts)
		rec.Observe(proc.Snapshot(true))
	}
	return calibrations
}

func readRecording(path string, port int) ([]source.Tick, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var frames []tactical.Frame
	if strings.EqualFold(filepath.Ext(path), ".pcap") {
		frames, err = source.ReadPcapFrames(f, port)
	} else {
		frames, err = source.ReadFrames(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return source.GroupTicks(frames), nil
}

// cameraNames lists cameras in order of first appearance.
func cameraNames(ticks []source.Tick) []string {
	var names []string
	seen := make(map[string]bool)
	for _, t := range ticks {
		for _, f := range t.Frames {
			if !seen[f.Camera] {
				seen[f.Camera] = true
				names = append(names, f.Camera)
			}
		}
	}
	return names
}

func cameraIntrinsics(dir, camera string) (calibration.Intrinsics, error) {
	if dir == "" {
		return source.DefaultSyntheticCameras()[0].Intrinsics, nil
	}
	matrix, err := security.CameraFile(dir, camera, "_matrix.txt")
	if err != nil {
		return calibration.Intrinsics{}, err
	}
	dist, err := security.CameraFile(dir, camera, "_distortion.txt")
	if err != nil {
		return calibration.Intrinsics{}, err
	}
	if _, err := os.Stat(dist); err != nil {
		dist = ""
	}
	return calibration.LoadIntrinsicsFiles(matrix, dist)
}
