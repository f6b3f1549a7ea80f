// Package version holds build metadata injected via -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info returns a one-line description of the running binary.
func Info() string {
	return fmt.Sprintf("anima %s (%s) built at %s", Version, GitCommit, BuildTime)
}
