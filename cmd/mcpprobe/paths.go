package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/musher-dev/mcpprobe/internal/config"
	"github.com/musher-dev/mcpprobe/internal/output"
	"github.com/musher-dev/mcpprobe/internal/paths"
)

// PathsInfo holds all resolved paths for JSON output.
type PathsInfo struct {
	ConfigRoot     string `json:"config_root"`
	StateRoot      string `json:"state_root"`
	ConfigFile     string `json:"config_file"`
	LogFile        string `json:"log_file"`
	TranscriptsDir string `json:"transcripts_dir"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where mcpprobe stores files",
		Long: `Display all file and directory paths used by mcpprobe.

Useful for debugging and scripting: shows where the config file is read
from and where logs and saved transcripts are written.`,
		Example: `  mcpprobe paths
  mcpprobe paths --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := resolvePathsInfo()

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("Config root:    %s\n", info.ConfigRoot)
			out.Print("State root:     %s\n", info.StateRoot)
			out.Print("\n")
			out.Print("Config file:    %s\n", info.ConfigFile)
			out.Print("Log file:       %s\n", info.LogFile)
			out.Print("Transcripts:    %s\n", info.TranscriptsDir)

			return nil
		},
	}
}

func resolvePathsInfo() PathsInfo {
	return PathsInfo{
		ConfigRoot:     resolveOrError(paths.ConfigRoot),
		StateRoot:      resolveOrError(paths.StateRoot),
		ConfigFile:     config.Load().File(),
		LogFile:        resolveOrError(paths.DefaultLogFile),
		TranscriptsDir: resolveOrError(paths.TranscriptsDir),
	}
}

func resolveOrError(fn func() (string, error)) string {
	val, err := fn()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}

	return val
}
