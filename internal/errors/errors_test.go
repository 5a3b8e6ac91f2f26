package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/musher-dev/mcpprobe/internal/testutil"
)

func TestStageTimedOut(t *testing.T) {
	tests := []struct {
		name     string
		captured []byte
		wantMsg  string
		wantHint string
	}{
		{
			name:     "no output",
			wantMsg:  "Timed out after 1m0s waiting for the ready marker",
			wantHint: "The server printed nothing",
		},
		{
			name:     "with output",
			captured: []byte("Building...\r\n\x1b[33mwarn\x1b[0m: slow start\r\n"),
			wantMsg:  "Timed out after 1m0s waiting for the ready marker",
			wantHint: "Last output:\n  Building...\n  warn: slow start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := StageTimedOut("the ready marker", "1m0s", tt.captured)

			if err.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Message, tt.wantMsg)
			}

			if !strings.Contains(err.Hint, tt.wantHint) {
				t.Errorf("hint = %q, want to contain %q", err.Hint, tt.wantHint)
			}

			if err.Code != ExitTimeout {
				t.Errorf("code = %d, want %d", err.Code, ExitTimeout)
			}
		})
	}
}

func TestServerExited_TruncatesCapture(t *testing.T) {
	var captured strings.Builder
	for i := range 20 {
		fmt.Fprintf(&captured, "line %d\n", i)
	}

	captured.WriteString(strings.Repeat("x", 300) + "\n")

	err := ServerExited("the result marker", []byte(captured.String()))

	lines := strings.Split(err.Hint, "\n")
	if len(lines) != tailLines+1 {
		t.Fatalf("hint has %d lines, want header plus %d", len(lines), tailLines)
	}

	if lines[1] != "  line 13" {
		t.Errorf("first captured line = %q, want %q", lines[1], "  line 13")
	}

	last := strings.TrimPrefix(lines[len(lines)-1], "  ")
	if len(last) != tailWidth || !strings.HasSuffix(last, "...") {
		t.Errorf("long line not truncated to %d cells: %d", tailWidth, len(last))
	}

	if err.Code != ExitExecution {
		t.Errorf("code = %d, want %d", err.Code, ExitExecution)
	}
}

// TestAllErrorsHaveHints verifies that all error constructors provide actionable hints.
func TestAllErrorsHaveHints(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
	}{
		{"ConfigFailed", ConfigFailed("test operation", nil)},
		{"InvalidConfig", InvalidConfig(nil)},
		{"InvalidFlag", InvalidFlag("arg", nil)},
		{"UnknownTool", UnknownTool("nope", nil)},
		{"ServerNotStarted", ServerNotStarted("server", nil)},
		{"StageTimedOut", StageTimedOut("the ready marker", "1s", nil)},
		{"ServerExited", ServerExited("the ready marker", nil)},
		{"ServerInputClosed", ServerInputClosed(nil, nil)},
		{"DecodeFailed", DecodeFailed(nil)},
		{"ServerReturnedError", ServerReturnedError("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Hint == "" {
				t.Errorf("%s() should have a hint, got empty string", tt.name)
			}

			if tt.err.Message == "" {
				t.Errorf("%s() should have a message, got empty string", tt.name)
			}
		})
	}
}

func TestCLIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
		want string
	}{
		{
			name: "message only",
			err:  &CLIError{Message: "test error"},
			want: "test error",
		},
		{
			name: "message with cause",
			err:  &CLIError{Message: "test error", Cause: New(1, "underlying")},
			want: "test error: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCLIError_Unwrap(t *testing.T) {
	cause := New(1, "cause")
	err := &CLIError{Message: "wrapper", Cause: cause}

	if got := err.Unwrap(); got != cause { //nolint:errorlint // testing identity
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestWithHint(t *testing.T) {
	err := New(1, "test").WithHint("do this")

	if err.Hint != "do this" {
		t.Errorf("WithHint() hint = %q, want %q", err.Hint, "do this")
	}
}

func TestWrap(t *testing.T) {
	cause := New(1, "cause")
	err := Wrap(ExitExecution, "wrapped", cause)

	if err.Code != ExitExecution {
		t.Errorf("Wrap() code = %d, want %d", err.Code, ExitExecution)
	}

	if err.Cause != cause { //nolint:errorlint // testing struct field identity
		t.Errorf("Wrap() cause = %v, want %v", err.Cause, cause)
	}
}

// formatCLIError produces a deterministic string representation of a CLIError for golden file comparison.
func formatCLIError(err *CLIError) string {
	return fmt.Sprintf("Message: %s\nHint: %s\nCode: %d\n", err.Message, err.Hint, err.Code)
}

func TestErrorMessages_Golden(t *testing.T) {
	tests := []struct {
		name string
		err  *CLIError
	}{
		{"ConfigFailed", ConfigFailed("set config", nil)},
		{"InvalidConfig", InvalidConfig(nil)},
		{"InvalidFlag", InvalidFlag("arg", nil)},
		{"UnknownTool", UnknownTool("get_weather", []string{"get_current_weather", "get_weather_alerts"})},
		{"ServerNotStarted", ServerNotStarted("dotnet run --project WeatherMcpServer", nil)},
		{"StageTimedOut_Silent", StageTimedOut("the ready marker", "1m0s", nil)},
		{"StageTimedOut_Output", StageTimedOut("the result marker", "1m0s", []byte("Application started.\n"))},
		{"ServerExited", ServerExited("the ready marker", []byte("Unhandled exception.\n   at Program.Main()\n"))},
		{"ServerInputClosed", ServerInputClosed(nil, nil)},
		{"DecodeFailed", DecodeFailed(nil)},
		{"ServerReturnedError", ServerReturnedError("Unknown tool: get_weather")},
	}

	var sb strings.Builder
	for _, tt := range tests {
		fmt.Fprintf(&sb, "--- %s ---\n", tt.name)
		sb.WriteString(formatCLIError(tt.err))
		sb.WriteString("\n")
	}

	testutil.AssertGolden(t, sb.String(), "error_messages.golden")
}
