// Package version provides build-time version information.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the version line printed by `kiejob version`.
func String() string {
	return fmt.Sprintf("kiejob %s (commit %s, built %s)", Version, Commit, BuildDate)
}

// UserAgent is the User-Agent value sent on API calls.
func UserAgent() string {
	return "kiejob/" + Version
}
