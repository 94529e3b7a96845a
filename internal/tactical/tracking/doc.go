// Package tracking owns the track list: association of each tick's unique
// positions to tracks, per-track constant-velocity Kalman filtering, turn
// detection and time-based expiry.
//
// Association order is creation order, so older tracks get first pick of
// ambiguous detections. The default FirstFit strategy takes the first
// position inside a track's gate; Hungarian is an optimal alternative.
//
// Other packages see tracks only through copies returned by Tracks and
// Track; zone flags and predicted crossings are written back through
// SetZoneFlags and SetCrossing.
package tracking
