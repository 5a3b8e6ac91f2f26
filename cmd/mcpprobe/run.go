//go:build unix

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/musher-dev/mcpprobe/internal/ansi"
	"github.com/musher-dev/mcpprobe/internal/config"
	clierrors "github.com/musher-dev/mcpprobe/internal/errors"
	"github.com/musher-dev/mcpprobe/internal/harness"
	"github.com/musher-dev/mcpprobe/internal/observability"
	"github.com/musher-dev/mcpprobe/internal/output"
	"github.com/musher-dev/mcpprobe/internal/protocol"
	"github.com/musher-dev/mcpprobe/internal/transcript"
)

// runFlagKeys binds run flags to the configuration keys they override.
var runFlagKeys = map[string]string{
	"command":           config.KeyCommand,
	"dir":               config.KeyDir,
	"env":               config.KeyEnv,
	"transport":         config.KeyTransport,
	"server":            config.KeyServerName,
	"servers-file":      config.KeyServerFile,
	"ready":             config.KeyReady,
	"result":            config.KeyResult,
	"regex":             config.KeyRegex,
	"tool":              config.KeyTool,
	"arg":               config.KeyArgs,
	"id":                config.KeyID,
	"timeout":           config.KeyTimeout,
	"shutdown-deadline": config.KeyShutdownDeadline,
	"decode":            config.KeyDecode,
	"close-input":       config.KeyCloseInput,
}

func newRunCmd() *cobra.Command {
	var (
		stripANSI bool
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one tools/call round trip against the server",
		Long: `Start the server, wait for its ready marker, send a single tools/call
request and wait for the result marker. Everything the server wrote from the
ready marker onwards is printed to stdout once it exits; progress and errors
go to stderr. Every wait is bounded by --timeout, and the server is always
stopped before mcpprobe exits.`,
		Example: `  mcpprobe run
  mcpprobe run --command "dotnet run --project WeatherMcpServer" --tool get_current_weather --arg city=Berlin
  mcpprobe run --server weather --servers-file .mcp.json
  mcpprobe run --transport pty --strip-ansi --timeout 2m
  mcpprobe run --decode --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			cfg := config.Load()
			if err := bindRunFlags(cfg, cmd.Flags()); err != nil {
				return err
			}

			probe, err := cfg.Probe()
			if err != nil {
				return clierrors.InvalidConfig(err)
			}

			plan, err := buildPlan(probe)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return executeRun(ctx, out, probe, plan, runDisplay{stripANSI: stripANSI, save: save})
		},
	}

	flags := cmd.Flags()
	flags.String("command", "", "Server command line (default: server.command)")
	flags.String("dir", "", "Working directory for the server")
	flags.StringSlice("env", nil, "Environment passed to the server: NAME or NAME=value (repeatable; default inherits all)")
	flags.String("transport", "", "How to attach to the server: pipe or pty")
	flags.String("server", "", "Launch this server from --servers-file instead of --command")
	flags.String("servers-file", "", "MCP client configuration declaring servers (default: .mcp.json)")
	flags.String("ready", "", "Marker the server prints once it accepts input")
	flags.String("result", "", "Marker that starts the server's reply")
	flags.Bool("regex", false, "Treat --ready and --result as regular expressions")
	flags.String("tool", "", "Tool to call")
	flags.StringArray("arg", nil, "Tool argument as name=value (repeatable)")
	flags.Int64("id", 0, "JSON-RPC request id")
	flags.Duration("timeout", 0, "Bound on each wait for the server")
	flags.Duration("shutdown-deadline", 0, "Grace period between SIGTERM and SIGKILL")
	flags.Bool("decode", false, "Also decode the reply as a JSON-RPC response")
	flags.Bool("close-input", false, "Close the server's input after the result marker so it exits (default: close_input, true)")
	cmd.Flags().BoolVar(&stripANSI, "strip-ansi", false, "Remove escape sequences and carriage returns from printed output")
	cmd.Flags().BoolVar(&save, "save", false, "Archive the run under the transcripts directory (see 'mcpprobe history')")

	return cmd
}

func bindRunFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	for name, key := range runFlagKeys {
		if err := cfg.BindFlag(key, flags.Lookup(name)); err != nil {
			return clierrors.Wrap(clierrors.ExitGeneral, "Failed to bind flags", err)
		}
	}

	return nil
}

// buildPlan turns a resolved probe into a round-trip plan.
func buildPlan(probe *config.Probe) (*harness.Plan, error) {
	ready, err := harness.ParsePattern(probe.ReadyMarker, probe.Regex)
	if err != nil {
		return nil, clierrors.InvalidFlag("ready", err)
	}

	result, err := harness.ParsePattern(probe.ResultMarker, probe.Regex)
	if err != nil {
		return nil, clierrors.InvalidFlag("result", err)
	}

	req, err := protocol.NewToolCall(probe.Tool, probe.Arguments, probe.RequestID)
	if err != nil {
		return nil, clierrors.InvalidFlag("tool", err)
	}

	return &harness.Plan{
		Spawn: harness.SpawnOptions{
			Command:          probe.Command,
			Env:              probe.Env,
			Dir:              probe.Dir,
			Timeout:          probe.Timeout,
			Transport:        harness.Transport(probe.Transport),
			ShutdownDeadline: probe.ShutdownDeadline,
		},
		Ready:      ready,
		Result:     result,
		Request:    req,
		Decode:     probe.Decode,
		CloseInput: probe.CloseInput,
	}, nil
}

type runDisplay struct {
	stripANSI bool
	save      bool
}

func executeRun(ctx context.Context, out *output.Writer, probe *config.Probe, plan *harness.Plan, display runDisplay) error {
	diag := out.Diagnostics()
	logger := observability.FromContext(ctx)

	if spec, ok := protocol.GetTool(probe.Tool); ok {
		if missing := spec.MissingArguments(probe.Arguments); len(missing) > 0 {
			diag.Warning("%s usually requires: %s", probe.Tool, strings.Join(missing, ", "))
		}
	}

	var store *transcript.Store

	if display.save {
		var err error

		store, err = transcript.NewStore(transcript.StoreOptions{
			Tool:      probe.Tool,
			Command:   probe.Command,
			Transport: probe.Transport,
		})
		if err != nil {
			logger.Warn("creating transcript failed", slog.String("error", err.Error()))
			diag.Warning("Could not save transcript: %v", err)
		} else {
			plan.OnOutput = func(stage harness.State, data []byte) {
				if appendErr := store.Append(string(stage), data); appendErr != nil {
					logger.Warn("recording transcript failed", slog.String("error", appendErr.Error()))
				}
			}
		}
	}

	spin := diag.Spinner("Starting server")
	plan.OnTransition = func(_, to harness.State) {
		if msg := progressMessage(to); msg != "" {
			spin.UpdateMessage(msg)
		}
	}

	started := time.Now()

	spin.Start()
	transcriptData, runErr := harness.RoundTrip(ctx, plan)
	spin.Stop()

	elapsed := time.Since(started)

	report := newRunReport(probe, transcriptData, runErr, display.stripANSI)

	if store != nil {
		store.SetOutcome(transcript.Outcome{State: report.State, FailedAt: report.FailedAt, Error: report.Error})

		if err := store.Close(); err != nil {
			logger.Warn("closing transcript failed", slog.String("error", err.Error()))
			diag.Warning("Could not save transcript: %v", err)
		} else {
			diag.Muted("Transcript saved to %s", store.Dir())
		}
	}

	if out.JSON {
		if err := out.PrintJSON(report); err != nil {
			return err
		}
	} else if transcriptData != nil {
		if err := out.Raw(transcriptData.Output(), display.stripANSI); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runError(probe, runErr)
	}

	if decoded := transcriptData.Decoded; decoded != nil {
		if !decoded.OK() {
			return clierrors.ServerReturnedError(decoded.Error)
		}

		if result, err := decoded.ToolResult(); err == nil && !out.JSON {
			if text := protocol.Text(result); text != "" {
				diag.Info("%s", ansi.Tail([]byte(text), 1, out.Terminal().Width))
			}

			if result.IsError {
				diag.Warning("%s reported a tool error", probe.Tool)
			}
		}
	}

	diag.Success("Round trip completed in %s", elapsed.Round(time.Millisecond))

	return nil
}

func progressMessage(state harness.State) string {
	switch state {
	case harness.StateSpawned:
		return "Waiting for the server to become ready"
	case harness.StateReady:
		return "Sending request"
	case harness.StateRequestSent:
		return "Waiting for the reply"
	case harness.StateResponseReceived:
		return "Reading the rest of the reply"
	case harness.StateDrained:
		return "Decoding the reply"
	default:
		return ""
	}
}

// runError maps a round-trip failure to a user-facing error.
func runError(probe *config.Probe, err error) error {
	stageErr, ok := harness.AsStageError(err)
	if !ok {
		return clierrors.Wrap(clierrors.ExitGeneral, "Round trip failed", err)
	}

	waitingFor := describeStage(probe, stageErr.Stage)

	switch {
	case errors.Is(err, harness.ErrSpawn):
		return clierrors.ServerNotStarted(strings.Join(probe.Command, " "), stageErr.Err)
	case errors.Is(err, harness.ErrTimeout):
		timedOut := clierrors.StageTimedOut(waitingFor, probe.Timeout.String(), stageErr.Captured)
		if stageErr.Stage == harness.StateDrained && !probe.CloseInput {
			timedOut.Hint = "The server may be waiting for more input; run with --close-input\n" + timedOut.Hint
		}

		return timedOut
	case errors.Is(err, harness.ErrBrokenPipe):
		return clierrors.ServerInputClosed(stageErr.Captured, stageErr.Err)
	case errors.Is(err, harness.ErrDecode):
		return clierrors.DecodeFailed(stageErr.Err)
	case errors.Is(err, harness.ErrEndOfStream):
		return clierrors.ServerExited(waitingFor, stageErr.Captured)
	default:
		return clierrors.Wrap(clierrors.ExitGeneral, "Round trip failed", err)
	}
}

func describeStage(probe *config.Probe, stage harness.State) string {
	switch stage {
	case harness.StateReady:
		return fmt.Sprintf("the ready marker %q", probe.ReadyMarker)
	case harness.StateResponseReceived:
		return fmt.Sprintf("the result marker %q", probe.ResultMarker)
	case harness.StateDrained:
		return "the server to exit after replying"
	default:
		return string(stage)
	}
}

// runReport is the JSON form of a run, printed with --json.
type runReport struct {
	Command     []string         `json:"command"`
	Transport   string           `json:"transport"`
	Pid         int              `json:"pid,omitempty"`
	Request     json.RawMessage  `json:"request"`
	State       string           `json:"state"`
	FailedAt    string           `json:"failed_at,omitempty"`
	Ready       string           `json:"ready_output"`
	Output      string           `json:"output"`
	DurationsMS map[string]int64 `json:"durations_ms"`
	Result      json.RawMessage  `json:"result,omitempty"`
	ServerError string           `json:"server_error,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func newRunReport(probe *config.Probe, t *harness.Transcript, runErr error, strip bool) *runReport {
	report := &runReport{
		Command:     probe.Command,
		Transport:   probe.Transport,
		DurationsMS: map[string]int64{},
	}

	if runErr != nil {
		report.Error = runErr.Error()
	}

	if t == nil {
		return report
	}

	text := func(b []byte) string {
		if strip {
			return ansi.Clean(b)
		}

		return string(b)
	}

	report.Pid = t.Pid
	report.Request = json.RawMessage(t.Request)
	report.State = string(t.State)
	report.FailedAt = string(t.FailedAt)
	report.Ready = text(t.Ready.Bytes())
	report.Output = text(t.Output())

	for state, d := range t.Durations {
		report.DurationsMS[string(state)] = d.Milliseconds()
	}

	if t.Decoded != nil {
		report.Result = t.Decoded.Result
		report.ServerError = t.Decoded.Error
	}

	return report
}
