// Command gen-scenario generates synthetic JSONL or pcap recordings of
// targets walking past two calibrated cameras, for replay and demos.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/tactical/internal/security"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/source"
)

func main() {
	output := flag.String("o", "scenario.jsonl", "output path (.jsonl, or .pcap for UDP datagrams)")
	ticks := flag.Int("n", 150, "number of ticks")
	rate := flag.Float64("rate", 10, "ticks per second")
	seed := flag.Int64("seed", 1, "random seed")
	noise := flag.Float64("noise", 0.5, "centroid noise in pixels")
	clutter := flag.Float64("clutter", 0.05, "chance per frame of a spurious undersized blob")
	markerEvery := flag.Int("marker-every", 0, "include markers every n ticks (0: first tick only)")
	port := flag.Int("port", 7300, "UDP destination port for pcap output")
	var targets targetList
	flag.Var(&targets, "target", "target as x,y,vx,vy (repeatable; default walks in along the centre line)")
	flag.Parse()

	if err := security.ValidateExportPath(*output); err != nil {
		log.Fatalf("invalid output path: %v", err)
	}

	g := source.NewSyntheticGenerator(time.Now().UTC().Truncate(time.Second), *seed)
	g.FrameRate = *rate
	g.PixelNoise = *noise
	g.ClutterProbability = *clutter
	g.MarkerEvery = *markerEvery
	if len(targets) > 0 {
		g.Targets = targets
	}

	f, err := os.Create(filepath.Clean(*output))
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer f.Close()

	frames := source.Frames(g.Generate(*ticks))
	if strings.EqualFold(filepath.Ext(*output), ".pcap") {
		err = source.WritePcapFrames(f, frames, *port)
	} else {
		err = source.WriteFrames(f, frames)
	}
	if err != nil {
		log.Fatalf("failed to write %s: %v", *output, err)
	}
	log.Printf("✓ Created: %s (%d ticks, %d frames)", *output, *ticks, len(frames))
}

// targetList collects repeated -target flags.
type targetList []source.SyntheticTarget

func (l *targetList) String() string {
	parts := make([]string, len(*l))
	for i, t := range *l {
		parts[i] = fmt.Sprintf("%g,%g,%g,%g", t.Start.X, t.Start.Y, t.Velocity.X, t.Velocity.Y)
	}
	return strings.Join(parts, " ")
}

func (l *targetList) Set(s string) error {
	t, err := parseTarget(s)
	if err != nil {
		return err
	}
	*l = append(*l, t)
	return nil
}

func parseTarget(s string) (source.SyntheticTarget, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return source.SyntheticTarget{}, fmt.Errorf("target %q: want x,y,vx,vy", s)
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return source.SyntheticTarget{}, fmt.Errorf("target %q: %w", s, err)
		}
		v[i] = n
	}
	return source.SyntheticTarget{
		Start:    tactical.Point{X: v[0], Y: v[1]},
		Velocity: tactical.Point{X: v[2], Y: v[3]},
	}, nil
}
