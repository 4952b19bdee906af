package version

// Build information set by ldflags
var (
	Version = "dev"     // Set by goreleaser: -X github.com/catkin/xylem/internal/version.Version={{.Version}}
	Commit  = "unknown" // Set by goreleaser: -X github.com/catkin/xylem/internal/version.Commit={{.Commit}}
	Date    = "unknown" // Set by goreleaser: -X github.com/catkin/xylem/internal/version.Date={{.Date}}
)
