// Package version carries build metadata, set with
// -ldflags "-X github.com/banshee-data/pathplanner/internal/version.Version=...".
package version

var (
	// Version is the release tag, recorded with every planner run.
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
