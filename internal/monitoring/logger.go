// Package monitoring routes log lines from the outer surfaces (storage
// migrations, admin routes) through one replaceable function.
package monitoring

import "log"

// Logf defaults to log.Printf. Tests mute or capture it with SetLogger.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces Logf; nil discards everything.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		f = func(string, ...any) {}
	}
	Logf = f
}
