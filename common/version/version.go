// Package version holds build-time version information, injected via
// -ldflags at build time.
package version

var (
	// Version is the semantic version of the build (e.g. "v0.4.1").
	Version = "dev"

	// GitCommit is the short commit hash the binary was built from.
	GitCommit = "unknown"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)
