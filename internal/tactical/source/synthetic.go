package source

import (
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
)

// SyntheticTarget walks a straight line on the ground plane.
type SyntheticTarget struct {
	Start    tactical.Point
	Velocity tactical.Point // ground units per second
}

// At returns the target position elapsed after the start.
func (t SyntheticTarget) At(elapsed time.Duration) tactical.Point {
	s := elapsed.Seconds()
	return tactical.Point{X: t.Start.X + t.Velocity.X*s, Y: t.Start.Y + t.Velocity.Y*s}
}

// SyntheticGenerator produces camera frames for known targets seen
// through known camera poses, for demos and replay tests.
type SyntheticGenerator struct {
	// Configuration
	Cameras            []calibration.Record
	Radii              tactical.ZoneRadii
	Targets            []SyntheticTarget
	FrameRate          float64 // ticks per second
	AreaModelK         float64
	AreaModelP         float64
	PixelNoise         float64 // standard deviation of centroid noise in pixels
	ClutterProbability float64 // chance per frame of one undersized spurious blob
	MarkerEvery        int     // include marker centroids every n ticks; 0 only on the first

	seq   uint64
	start time.Time
	rng   *rand.Rand
}

// DefaultSyntheticCameras returns two cameras a metre apart behind the
// origin, both looking down the centre line.
func DefaultSyntheticCameras() []calibration.Record {
	intr := calibration.Intrinsics{Matrix: calibration.Mat3{800, 0, 640, 0, 800, 360, 0, 0, 1}}
	target := calibration.Vec3{X: 0, Y: 8, Z: 0}
	return []calibration.Record{
		{Camera: "left", Intrinsics: intr, Pose: calibration.LookAt(calibration.Vec3{X: -0.5, Y: -3, Z: 4}, target)},
		{Camera: "right", Intrinsics: intr, Pose: calibration.LookAt(calibration.Vec3{X: 0.5, Y: -3, Z: 4}, target)},
	}
}

// NewSyntheticGenerator creates a generator with the default cameras,
// preset and area model, and one target walking in from the predict zone.
func NewSyntheticGenerator(start time.Time, seed int64) *SyntheticGenerator {
	cfg := config.DefaultTuningConfig()
	return &SyntheticGenerator{
		Cameras:    DefaultSyntheticCameras(),
		Radii:      cfg.ActiveZoneRadii(),
		Targets:    []SyntheticTarget{{Start: tactical.Point{X: 1, Y: 14}, Velocity: tactical.Point{X: -0.05, Y: -1}}},
		FrameRate:  10,
		AreaModelK: cfg.GetAreaModelK(),
		AreaModelP: cfg.GetAreaModelP(),
		start:      start,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// NextTick generates one frame per camera for the next tick.
func (g *SyntheticGenerator) NextTick() Tick {
	g.seq++
	period := time.Duration(float64(time.Second) / g.FrameRate)
	elapsed := time.Duration(g.seq-1) * period
	now := g.start.Add(elapsed)

	withMarkers := g.seq == 1 || (g.MarkerEvery > 0 && (g.seq-1)%uint64(g.MarkerEvery) == 0)
	tick := Tick{Seq: g.seq, Time: now}
	for _, cam := range g.Cameras {
		f := tactical.Frame{Camera: cam.Camera, Seq: g.seq, Time: now}
		if withMarkers {
			f.Markers = g.markers(cam)
		}
		for _, t := range g.Targets {
			pos := t.At(elapsed)
			px, err := cam.Project(calibration.Vec3{X: pos.X, Y: pos.Y})
			if err != nil {
				continue
			}
			px.X += g.rng.NormFloat64() * g.PixelNoise
			px.Y += g.rng.NormFloat64() * g.PixelNoise
			f.Blobs = append(f.Blobs, tactical.Blob{
				Centroid: px,
				Area:     g.AreaModelK * math.Pow(math.Max(pos.Norm(), 0.5), g.AreaModelP),
			})
		}
		if g.ClutterProbability > 0 && g.rng.Float64() < g.ClutterProbability {
			f.Blobs = append(f.Blobs, tactical.Blob{
				Centroid: tactical.Point{X: g.rng.Float64() * 1280, Y: g.rng.Float64() * 720},
				Area:     1 + g.rng.Float64()*20,
			})
		}
		tick.Frames = append(tick.Frames, f)
	}
	return tick
}

// Generate returns n consecutive ticks.
func (g *SyntheticGenerator) Generate(n int) []Tick {
	ticks := make([]Tick, 0, n)
	for i := 0; i < n; i++ {
		ticks = append(ticks, g.NextTick())
	}
	return ticks
}

func (g *SyntheticGenerator) markers(cam calibration.Record) []tactical.Point {
	var px []tactical.Point
	for _, m := range calibration.MarkerLayout(g.Radii, calibration.SideRight) {
		p, err := cam.Project(m)
		if err != nil {
			return nil
		}
		px = append(px, p)
	}
	return px
}

// Frames flattens ticks into a frame sequence for WriteFrames.
func Frames(ticks []Tick) []tactical.Frame {
	var out []tactical.Frame
	for _, t := range ticks {
		out = append(out, t.Frames...)
	}
	return out
}
