// Package errors provides structured CLI error types for mcpprobe.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/musher-dev/mcpprobe/internal/ansi"
)

// Exit codes for CLI errors.
const (
	ExitSuccess   = 0  // Successful execution
	ExitGeneral   = 1  // General error
	ExitConfig    = 4  // Configuration error
	ExitTimeout   = 5  // A wait on the server timed out
	ExitExecution = 6  // The server misbehaved during the round trip
	ExitUsage     = 64 // Command line usage error (BSD convention)
)

// Captured output shown in hints is limited to this many lines and cells.
const (
	tailLines = 8
	tailWidth = 120
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// ConfigFailed returns an error for configuration save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your mcpprobe config directory or run 'mcpprobe doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// InvalidConfig returns an error for settings that cannot produce a run.
func InvalidConfig(cause error) *CLIError {
	return &CLIError{
		Message: "Invalid configuration",
		Hint:    "Run 'mcpprobe config list' to review settings, or override them with flags",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// InvalidFlag returns an error for a flag value that cannot be used.
func InvalidFlag(flag string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid value for --%s", flag),
		Hint:    "Run 'mcpprobe run --help' for accepted values",
		Cause:   cause,
		Code:    ExitUsage,
	}
}

// UnknownTool returns an error for a tool outside the known catalog.
func UnknownTool(name string, known []string) *CLIError {
	hint := "No tools are known"
	if len(known) > 0 {
		hint = fmt.Sprintf("Known tools: %s", strings.Join(known, ", "))
	}

	return &CLIError{
		Message: fmt.Sprintf("Unknown tool: %s", name),
		Hint:    hint,
		Code:    ExitUsage,
	}
}

// ServerNotStarted returns an error when the server process cannot be created.
func ServerNotStarted(command string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to start server: %s", command),
		Hint:    "Check server.command (or --command) and that the executable is on PATH",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// StageTimedOut returns an error for a wait that exceeded the timeout.
func StageTimedOut(waitingFor, timeout string, captured []byte) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Timed out after %s waiting for %s", timeout, waitingFor),
		Hint:    captureHint(captured, "The server printed nothing; check that it writes the expected marker, or increase --timeout"),
		Code:    ExitTimeout,
	}
}

// ServerExited returns an error when the server closed its output before a
// marker appeared.
func ServerExited(waitingFor string, captured []byte) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Server exited before %s", waitingFor),
		Hint:    captureHint(captured, "The server printed nothing; run it by hand to check that it starts"),
		Code:    ExitExecution,
	}
}

// ServerInputClosed returns an error when the request could not be written.
func ServerInputClosed(captured []byte, cause error) *CLIError {
	return &CLIError{
		Message: "Server stopped reading input before the request was sent",
		Hint:    captureHint(captured, "The server exited right after becoming ready"),
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// DecodeFailed returns an error when the reply is not a valid response.
func DecodeFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Response could not be decoded",
		Hint:    "Run without --decode to inspect the raw output",
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// ServerReturnedError returns an error for a JSON-RPC error response.
func ServerReturnedError(message string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Server returned an error: %s", message),
		Hint:    "Check the tool name and arguments with 'mcpprobe tools'",
		Code:    ExitExecution,
	}
}

// captureHint renders the tail of captured output, or fallback if there is none.
func captureHint(captured []byte, fallback string) string {
	tail := ansi.Tail(captured, tailLines, tailWidth)
	if tail == "" {
		return fallback
	}

	return "Last output:\n  " + strings.ReplaceAll(tail, "\n", "\n  ")
}
