// Package sqlite persists camera calibrations, camera intrinsics and the
// alert log in a single SQLite file. The schema is managed by embedded
// golang-migrate migrations applied on Open.
package sqlite
