package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/musher-dev/mcpprobe/internal/config"
	"github.com/musher-dev/mcpprobe/internal/doctor"
	clierrors "github.com/musher-dev/mcpprobe/internal/errors"
	"github.com/musher-dev/mcpprobe/internal/output"
)

// doctorCheck is the JSON form of a diagnostic result.
type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks against the current configuration without starting
the server.

Checks performed:
  - Config file and settings resolve
  - Server executable and working directory exist
  - Markers compile and the tool call is well formed
  - The selected transport is usable on this host`,
		Example: `  mcpprobe doctor
  mcpprobe doctor --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			runner := doctor.New(config.Load())
			results := runner.Run(cmd.Context())
			passed, failed, warnings := doctor.Summary(results)

			if out.JSON {
				checks := make([]doctorCheck, 0, len(results))
				for _, r := range results {
					checks = append(checks, doctorCheck{
						Name:    r.Name,
						Status:  statusName(r.Status),
						Message: r.Message,
						Detail:  r.Detail,
					})
				}

				if err := out.PrintJSON(checks); err != nil {
					return err
				}
			} else {
				renderDoctor(out, results, passed, failed, warnings)
			}

			if failed > 0 {
				return clierrors.New(clierrors.ExitConfig, fmt.Sprintf("%d check(s) failed", failed)).
					WithHint("Fix the failed checks above, then run 'mcpprobe doctor' again")
			}

			return nil
		},
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result, passed, failed, warnings int) {
	out.Println("mcpprobe doctor")
	out.Println("===============")
	out.Println()

	doctor.RenderResults(results, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

	out.Println()
	out.Print("%d passed", passed)

	if failed > 0 {
		out.Print(", %d failed", failed)
	}

	if warnings > 0 {
		out.Print(", %d warning(s)", warnings)
	}

	out.Println()
}

func statusName(s doctor.Status) string {
	switch s {
	case doctor.StatusPass:
		return "pass"
	case doctor.StatusWarn:
		return "warn"
	case doctor.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}
