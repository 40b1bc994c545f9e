package version

import "fmt"

// Tagline is the application's tagline used in help text
const Tagline = "kiln keeps a kiln of coding-agent sessions warm"

// Build information injected at build time via ldflags
var (
	Version = "dev"     // Semantic version or "dev"
	Commit  = "unknown" // Git commit hash
	Date    = "unknown" // Build date (RFC3339)
)

// Info returns formatted version information
func Info() string {
	return fmt.Sprintf("kiln %s (commit: %s, built: %s)", Version, Commit, Date)
}
