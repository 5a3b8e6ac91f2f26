package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/musher-dev/mcpprobe/internal/config"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)

	for key, value := range env {
		t.Setenv(key, value)
	}

	return config.Load()
}

func resultsByName(results []Result) map[string]Result {
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	return byName
}

func TestRunner_HealthyProbe(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"MCPPROBE_SERVER_COMMAND":   os.Args[0] + " -test.run=^$",
		"MCPPROBE_SERVER_TRANSPORT": "pipe",
		"MCPPROBE_TIMEOUT":          "30s",
	})

	results := resultsByName(New(cfg).Run(t.Context()))

	for _, name := range []string{"Configuration", "Server Command", "Working Directory", "Markers", "Tool Call", "Timeout", "Transport"} {
		if got := results[name]; got.Status != StatusPass {
			t.Errorf("%s = %+v, want pass", name, got)
		}
	}

	if got := results["Server Command"].Message; got == "" {
		t.Error("Server Command message is empty, want the resolved path")
	}
}

func TestRunner_ReportsProblems(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"MCPPROBE_SERVER_COMMAND": "mcpprobe-definitely-not-installed",
		"MCPPROBE_SERVER_DIR":     filepath.Join(t.TempDir(), "missing"),
		"MCPPROBE_MARKERS_REGEX":  "true",
		"MCPPROBE_MARKERS_READY":  "Application (started",
		"MCPPROBE_REQUEST_TOOL":   "get_weather_forecast",
		"MCPPROBE_REQUEST_ARGS":   "days=3",
		"MCPPROBE_TIMEOUT":        "100ms",
	})

	results := resultsByName(New(cfg).Run(t.Context()))

	want := map[string]Status{
		"Configuration":     StatusPass,
		"Server Command":    StatusFail,
		"Working Directory": StatusFail,
		"Markers":           StatusFail,
		"Tool Call":         StatusWarn,
		"Timeout":           StatusWarn,
	}

	for name, status := range want {
		if got := results[name].Status; got != status {
			t.Errorf("%s status = %v (%s), want %v", name, got, results[name].Message, status)
		}
	}

	if got := results["Tool Call"].Detail; got != "city" {
		t.Errorf("Tool Call detail = %q, want missing city", got)
	}
}

func TestRunner_InvalidConfigSkipsDependentChecks(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"MCPPROBE_SERVER_TRANSPORT": "socket",
	})

	results := resultsByName(New(cfg).Run(t.Context()))

	if got := results["Configuration"].Status; got != StatusFail {
		t.Fatalf("Configuration status = %v, want fail", got)
	}

	if got := results["Server Command"]; got.Status != StatusWarn || got.Message != "Skipped (configuration invalid)" {
		t.Fatalf("Server Command = %+v, want skipped", got)
	}
}

func TestSummary(t *testing.T) {
	passed, failed, warnings := Summary([]Result{
		{Status: StatusPass},
		{Status: StatusPass},
		{Status: StatusWarn},
		{Status: StatusFail},
	})

	if passed != 2 || failed != 1 || warnings != 1 {
		t.Fatalf("Summary() = %d, %d, %d; want 2, 1, 1", passed, failed, warnings)
	}
}

func TestStatusSymbol(t *testing.T) {
	if StatusPass.Symbol() != checkMark || StatusWarn.Symbol() != warningMark || StatusFail.Symbol() != xMark {
		t.Fatal("unexpected status symbols")
	}

	if Status(99).Symbol() != "?" {
		t.Fatal("unknown status should render as ?")
	}
}
