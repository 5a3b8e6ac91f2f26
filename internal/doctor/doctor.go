// Package doctor provides diagnostic checks for an mcpprobe setup.
//
// This package implements a check framework that validates:
//   - The probe configuration resolves and is consistent
//   - The server executable and working directory exist
//   - Both markers compile and the tool call is well formed
//   - The selected transport is usable on this host
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/musher-dev/mcpprobe/internal/buildinfo"
	"github.com/musher-dev/mcpprobe/internal/config"
	"github.com/musher-dev/mcpprobe/internal/harness"
	"github.com/musher-dev/mcpprobe/internal/protocol"
)

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

// Timeouts outside this range are reported as suspicious.
const (
	minSaneTimeout = time.Second
	maxSaneTimeout = 10 * time.Minute
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string
	Status  Status
	Message string
	Detail  string // Optional additional detail
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// New creates a runner with the default checks against cfg.
func New(cfg *config.Config) *Runner {
	r := &Runner{}
	d := &diagnosis{cfg: cfg}

	r.AddCheck("Config File", d.checkConfigFile)
	r.AddCheck("Configuration", d.checkConfiguration)
	r.AddCheck("Server Command", d.checkServerCommand)
	r.AddCheck("Working Directory", d.checkWorkingDir)
	r.AddCheck("Markers", d.checkMarkers)
	r.AddCheck("Tool Call", d.checkToolCall)
	r.AddCheck("Timeout", d.checkTimeout)
	r.AddCheck("Transport", d.checkTransport)
	r.AddCheck("CLI Version", checkCLIVersion)

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks and returns the results.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

// diagnosis resolves the probe once and shares it between checks.
type diagnosis struct {
	cfg      *config.Config
	probe    *config.Probe
	probeErr error
	resolved bool
}

func (d *diagnosis) resolve() (*config.Probe, error) {
	if !d.resolved {
		d.probe, d.probeErr = d.cfg.Probe()
		d.resolved = true
	}

	return d.probe, d.probeErr
}

func (d *diagnosis) checkConfigFile(context.Context) Result {
	path := d.cfg.File()
	if path == "" {
		return Result{Status: StatusWarn, Message: "Config directory unavailable"}
	}

	if _, err := os.Stat(path); err != nil {
		return Result{
			Status:  StatusPass,
			Message: "Using built-in defaults",
			Detail:  fmt.Sprintf("'mcpprobe config set' writes %s", path),
		}
	}

	return Result{Status: StatusPass, Message: path}
}

func (d *diagnosis) checkConfiguration(context.Context) Result {
	if _, err := d.resolve(); err != nil {
		return Result{
			Status:  StatusFail,
			Message: "Invalid",
			Detail:  err.Error(),
		}
	}

	return Result{Status: StatusPass, Message: "Valid"}
}

func (d *diagnosis) checkServerCommand(context.Context) Result {
	p, err := d.resolve()
	if err != nil {
		return skipped()
	}

	path, err := exec.LookPath(p.Command[0])
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found in PATH", p.Command[0]),
			Detail:  "Set server.command or pass --command",
		}
	}

	return Result{Status: StatusPass, Message: path}
}

func (d *diagnosis) checkWorkingDir(context.Context) Result {
	p, err := d.resolve()
	if err != nil {
		return skipped()
	}

	if p.Dir == "" {
		return Result{Status: StatusPass, Message: "Current directory"}
	}

	info, err := os.Stat(p.Dir)
	if err != nil {
		return Result{Status: StatusFail, Message: p.Dir, Detail: err.Error()}
	}

	if !info.IsDir() {
		return Result{Status: StatusFail, Message: fmt.Sprintf("%s is not a directory", p.Dir)}
	}

	return Result{Status: StatusPass, Message: p.Dir}
}

func (d *diagnosis) checkMarkers(context.Context) Result {
	p, err := d.resolve()
	if err != nil {
		return skipped()
	}

	for _, marker := range []string{p.ReadyMarker, p.ResultMarker} {
		if _, err := harness.ParsePattern(marker, p.Regex); err != nil {
			return Result{Status: StatusFail, Message: "Marker does not compile", Detail: err.Error()}
		}
	}

	kind := "literal"
	if p.Regex {
		kind = "regex"
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("ready %q, result %q (%s)", p.ReadyMarker, p.ResultMarker, kind),
	}
}

func (d *diagnosis) checkToolCall(context.Context) Result {
	p, err := d.resolve()
	if err != nil {
		return skipped()
	}

	if _, err := protocol.NewToolCall(p.Tool, p.Arguments, p.RequestID); err != nil {
		return Result{Status: StatusFail, Message: "Request cannot be built", Detail: err.Error()}
	}

	spec, ok := protocol.GetTool(p.Tool)
	if !ok {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not a known weather tool", p.Tool),
			Detail:  "Fine for other servers; 'mcpprobe tools' lists the known ones",
		}
	}

	if missing := spec.MissingArguments(p.Arguments); len(missing) > 0 {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is missing required arguments", p.Tool),
			Detail:  strings.Join(missing, ", "),
		}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("%s (id %d)", p.Tool, p.RequestID)}
}

func (d *diagnosis) checkTimeout(context.Context) Result {
	p, err := d.resolve()
	if err != nil {
		return skipped()
	}

	if p.Timeout < minSaneTimeout || p.Timeout > maxSaneTimeout {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s per wait", p.Timeout),
			Detail:  fmt.Sprintf("Expected between %s and %s", minSaneTimeout, maxSaneTimeout),
		}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("%s per wait", p.Timeout)}
}

func (d *diagnosis) checkTransport(context.Context) Result {
	p, err := d.resolve()
	if err != nil {
		return skipped()
	}

	if p.Transport != "pty" {
		return Result{Status: StatusPass, Message: "pipe (stdout and stderr merged)"}
	}

	ptmx, tty, err := pty.Open()
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: "pty unavailable",
			Detail:  err.Error(),
		}
	}

	name := tty.Name()
	_ = tty.Close()
	_ = ptmx.Close()

	return Result{Status: StatusPass, Message: fmt.Sprintf("pty (%s)", name)}
}

// checkCLIVersion reports the build version.
func checkCLIVersion(context.Context) Result {
	if buildinfo.Version == "dev" {
		return Result{
			Status:  StatusWarn,
			Message: "Development build",
		}
	}

	return Result{Status: StatusPass, Message: "v" + buildinfo.Version}
}

func skipped() Result {
	return Result{Status: StatusWarn, Message: "Skipped (configuration invalid)"}
}

// RenderResults formats diagnostic results to the given output writer.
func RenderResults(results []Result, printFn, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	maxNameLen := 0
	for _, r := range results {
		if len(r.Name) > maxNameLen {
			maxNameLen = len(r.Name)
		}
	}

	for _, r := range results {
		symbol := r.Status.Symbol()
		padding := maxNameLen - len(r.Name) + 4

		switch r.Status {
		case StatusPass:
			successFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		case StatusWarn:
			warningFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		case StatusFail:
			failureFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		default:
			printFn("%s %-*s%s\n", symbol, len(r.Name)+padding, r.Name, r.Message)
		}

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}

// Symbol returns the status symbol for display.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return checkMark
	case StatusWarn:
		return warningMark
	case StatusFail:
		return xMark
	default:
		return "?"
	}
}

const (
	checkMark   = "\u2713" // ✓
	xMark       = "\u2717" // ✗
	warningMark = "\u26A0" // ⚠
)
