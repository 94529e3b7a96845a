package tactical

import (
	"io"
	"log"
	"sync/atomic"
)

// Level selects one of the log streams.
type Level int

const (
	// LevelOps carries alerts, calibration outcomes, control actions and
	// faults an operator should see.
	LevelOps Level = iota
	// LevelDiag carries track lifecycle, camera read failures and
	// tuning context.
	LevelDiag
	// LevelTrace carries per-tick and per-detection telemetry.
	LevelTrace
	numLevels
)

// LogWriters holds the destination of each stream. A nil writer
// silences its stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

type streamSet [numLevels]*log.Logger

var streams atomic.Pointer[streamSet]

// SetLogWriters replaces all streams at once. Callers in other packages
// tag their messages with a bracketed component, e.g. "[Tracking]".
func SetLogWriters(w LogWriters) {
	var s streamSet
	for lvl, out := range [numLevels]io.Writer{w.Ops, w.Diag, w.Trace} {
		if out != nil {
			s[lvl] = log.New(out, "[tactical] ", log.LstdFlags|log.Lmicroseconds)
		}
	}
	streams.Store(&s)
}

func logger(lvl Level) *log.Logger {
	s := streams.Load()
	if s == nil || lvl < 0 || lvl >= numLevels {
		return nil
	}
	return s[lvl]
}

// Enabled reports whether lvl has a writer, so callers can skip building
// costly messages.
func Enabled(lvl Level) bool { return logger(lvl) != nil }

// Logf writes to the stream for lvl, if any.
func Logf(lvl Level, format string, args ...any) {
	if l := logger(lvl); l != nil {
		l.Printf(format, args...)
	}
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...any) { Logf(LevelOps, format, args...) }

// Diagf logs to the diag stream.
func Diagf(format string, args ...any) { Logf(LevelDiag, format, args...) }

// Tracef logs to the trace stream.
func Tracef(format string, args ...any) { Logf(LevelTrace, format, args...) }
