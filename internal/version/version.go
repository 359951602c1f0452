// Package version holds build metadata stamped in by the linker
package version

// Set with -ldflags "-X github.com/jmullan/gslimp3/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
)
