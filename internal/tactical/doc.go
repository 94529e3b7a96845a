// Package tactical holds the ground-plane types shared by the tracking core
// and the ops/diag/trace logging streams its layers write to.
//
// The core is split into one package per stage of the tick:
// calibration (pixel to ground), discrimination (per-camera plausibility),
// correlation (cross-camera deduplication), tracking (association, Kalman
// filtering, lifecycle), prediction (boundary crossing) and zones
// (hysteresis-gated alerts). The pipeline package drives them in order.
//
// Dependency rule: stage packages may depend on this package and on
// internal/config, never on pipeline or on storage.
package tactical
