package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/mcpprobe/internal/ansi"
	clierrors "github.com/musher-dev/mcpprobe/internal/errors"
	"github.com/musher-dev/mcpprobe/internal/output"
	"github.com/musher-dev/mcpprobe/internal/prompt"
	"github.com/musher-dev/mcpprobe/internal/transcript"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect runs saved with 'run --save'",
		Long:  `List, view and prune round trips archived by 'mcpprobe run --save'.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryViewCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved runs",
		Long:  `List saved runs, newest first, with the tool called and how each run ended.`,
		Example: `  mcpprobe history list
  mcpprobe history list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			runs, err := transcript.ListRuns("")
			if err != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to list saved runs", err)
			}

			if out.JSON {
				if runs == nil {
					runs = []transcript.Run{}
				}

				return out.PrintJSON(runs)
			}

			if len(runs) == 0 {
				out.Muted("No saved runs. Use 'mcpprobe run --save' to keep one.")
				return nil
			}

			for i := range runs {
				r := &runs[i]
				out.Print("%s  %-22s %s\n", r.RunID, r.Tool, runStatus(r))
			}

			return nil
		},
	}
}

func runStatus(r *transcript.Run) string {
	switch {
	case !r.Closed():
		return "incomplete"
	case r.FailedAt != "":
		return "failed at " + r.FailedAt
	default:
		return "ok"
	}
}

func newHistoryViewCmd() *cobra.Command {
	var (
		search string
		stage  string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "view [run-id]",
		Short: "Show the output recorded for a saved run",
		Long: `Print the output a saved run captured, stage by stage. Without a run id
the most recent run is shown. Escape sequences are removed unless --raw is set.`,
		Example: `  mcpprobe history view
  mcpprobe history view 20261019T120000Z-1a2b3c4d --stage response
  mcpprobe history view --search alert`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			runID, err := resolveRunID(out, args)
			if err != nil {
				return err
			}

			events, err := transcript.ReadEvents("", runID)
			if err != nil {
				if errors.Is(err, transcript.ErrNotFound) {
					return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("No saved run named %s", runID)).
						WithHint("Run 'mcpprobe history list' to see saved runs")
				}

				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read saved run", err)
			}

			for _, ev := range events {
				if stage != "" && ev.Stage != stage {
					continue
				}

				text := ev.Text
				if !raw {
					text = ansi.Clean([]byte(text))
				}

				if search != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(search)) {
					continue
				}

				out.Print("%s\n", strings.TrimRight(text, "\n"))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Only show chunks containing this substring")
	cmd.Flags().StringVar(&stage, "stage", "", "Only show one stage: ready, request_sent, response_received, drained")
	cmd.Flags().BoolVar(&raw, "raw", false, "Show raw output including escape sequences")

	return cmd
}

// resolveRunID returns the requested run id. Without one, an interactive
// session picks from the saved runs and anything else gets the newest.
func resolveRunID(out *output.Writer, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	runs, err := transcript.ListRuns("")
	if err != nil {
		return "", clierrors.Wrap(clierrors.ExitGeneral, "Failed to list saved runs", err)
	}

	if len(runs) == 0 {
		return "", clierrors.New(clierrors.ExitUsage, "No saved runs").
			WithHint("Use 'mcpprobe run --save' to keep one")
	}

	prompter := prompt.New(out)
	if len(runs) == 1 || !prompter.CanPrompt() {
		return runs[0].RunID, nil
	}

	options := make([]string, len(runs))
	for i := range runs {
		options[i] = fmt.Sprintf("%s  %-22s %s", runs[i].RunID, runs[i].Tool, runStatus(&runs[i]))
	}

	idx, err := prompter.Select("Saved runs:", options)
	if err != nil {
		if prompt.IsCanceled(err) {
			return "", clierrors.New(clierrors.ExitUsage, "No run selected")
		}

		return "", clierrors.Wrap(clierrors.ExitGeneral, "Failed to read selection", err)
	}

	return runs[idx].RunID, nil
}

func newHistoryPruneCmd() *cobra.Command {
	var (
		olderThan time.Duration
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete saved runs older than a duration",
		Long: `Delete saved runs that finished longer ago than --older-than. The runs to
be removed are listed and confirmation is required unless --force is passed.`,
		Example: `  mcpprobe history prune
  mcpprobe history prune --older-than 168h --force`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			if olderThan < 0 {
				return clierrors.InvalidFlag("older-than", fmt.Errorf("duration cannot be negative, got %s", olderThan))
			}

			stale, err := transcript.StaleRuns("", time.Now().Add(-olderThan))
			if err != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to list saved runs", err)
			}

			if len(stale) == 0 {
				out.Muted("No saved runs older than %s", olderThan)
				return nil
			}

			if !force {
				prompter := prompt.New(out)
				if !prompter.CanPrompt() {
					return clierrors.New(clierrors.ExitUsage, "Cannot confirm prune in non-interactive mode").
						WithHint("Use --force to skip confirmation")
				}

				diag := out.Diagnostics()
				diag.Println("The following saved runs will be removed:")

				for i := range stale {
					diag.Print("  %s  %s\n", stale[i].RunID, stale[i].Tool)
				}

				diag.Println()

				confirmed, promptErr := prompter.Confirm(fmt.Sprintf("Remove %d saved run(s)?", len(stale)), false)
				if promptErr != nil && !prompt.IsCanceled(promptErr) {
					return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read confirmation", promptErr)
				}

				if !confirmed {
					out.Info("Prune canceled")
					return nil
				}
			}

			removed, err := transcript.RemoveRuns(stale)
			if err != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to prune saved runs", err)
			}

			out.Success("Removed %d saved run(s)", removed)

			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", transcript.DefaultRetention(), "Retention window")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
