// Package pipeline runs the tactical tick: per-camera discrimination,
// cross-camera correlation, tracking, crossing prediction and zone
// alerts, in that order, plus the operator control operations that act on
// the same state.
//
// This package is the composition root of the core. Stage packages never
// import it; storage and alert outputs plug in through the AlertSink and
// CalibrationSink interfaces.
package pipeline
