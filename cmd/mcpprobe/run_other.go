//go:build !unix

package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/musher-dev/mcpprobe/internal/errors"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one tools/call round trip against the server",
		Long: `Start the server, wait for its ready marker, send a single tools/call
request and wait for the result marker.

Running a server is currently supported only on Unix-like systems.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return &clierrors.CLIError{
				Message: "Running a server is not supported on this operating system",
				Hint:    "Run mcpprobe on a Unix-like OS (macOS/Linux) to use 'mcpprobe run'",
				Code:    clierrors.ExitUsage,
			}
		},
	}
}
