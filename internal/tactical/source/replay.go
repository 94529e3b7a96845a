package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/timeutil"
)

// maxLineSize bounds one JSON line in a recording.
const maxLineSize = 1 << 20

// ReadFrames reads a JSON-lines recording, one frame per line. Blank lines
// and lines starting with '#' are skipped.
func ReadFrames(r io.Reader) ([]tactical.Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	var frames []tactical.Frame
	line := 0
	for sc.Scan() {
		line++
		text := sc.Bytes()
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		f, err := DecodeFrame(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return frames, nil
}

// WriteFrames writes frames as JSON lines.
func WriteFrames(w io.Writer, frames []tactical.Frame) error {
	bw := bufio.NewWriter(w)
	for _, f := range frames {
		data, err := EncodeFrame(f)
		if err != nil {
			return err
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Tick is the set of frames captured for one processing cycle.
type Tick struct {
	Seq    uint64
	Time   time.Time
	Frames []tactical.Frame
}

// GroupTicks groups consecutive frames sharing a sequence number. A tick's
// time is the latest frame time in it.
func GroupTicks(frames []tactical.Frame) []Tick {
	var ticks []Tick
	for _, f := range frames {
		if n := len(ticks); n > 0 && ticks[n-1].Seq == f.Seq {
			t := &ticks[n-1]
			t.Frames = append(t.Frames, f)
			if f.Time.After(t.Time) {
				t.Time = f.Time
			}
			continue
		}
		ticks = append(ticks, Tick{Seq: f.Seq, Time: f.Time, Frames: []tactical.Frame{f}})
	}
	return ticks
}

// Play feeds ticks into hub, one tick per interval of clk, until the
// recording ends or ctx is cancelled.
func Play(ctx context.Context, ticks []Tick, hub *Hub, clk timeutil.Clock, interval time.Duration) error {
	if len(ticks) == 0 {
		return nil
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for i, t := range ticks {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C():
			}
		}
		for _, f := range t.Frames {
			hub.Put(f)
		}
	}
	tactical.Diagf("[Source] replay finished after %d ticks", len(ticks))
	return nil
}
