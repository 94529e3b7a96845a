// Package version carries build metadata, set with -ldflags -X at link time.
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for -version and the debug page.
func String() string {
	return fmt.Sprintf("tactical %s (%s) built %s", Version, GitSHA, BuildTime)
}
