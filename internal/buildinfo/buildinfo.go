// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

// Set from cmd/mcpprobe at startup, which receives them via ldflags.
var (
	Version = "dev"
	Commit  = "none"
)
