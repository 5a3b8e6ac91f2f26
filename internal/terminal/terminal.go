// Package terminal provides terminal detection and capabilities.
//
// This package handles:
//   - TTY detection for stdout and stderr
//   - NO_COLOR environment variable support
//   - Terminal dimensions
package terminal

import (
	"os"

	"golang.org/x/term"
)

// Info holds terminal capability information.
type Info struct {
	IsTTY     bool // stdout is a terminal
	ErrIsTTY  bool // stderr is a terminal
	NoColor   bool
	Width     int
	Height    int
	ForceFlag bool // Set when --no-color flag is used
}

// Detect returns terminal information for the current environment.
func Detect() *Info {
	stdoutFD := int(os.Stdout.Fd())
	isTTY := term.IsTerminal(stdoutFD)
	errIsTTY := term.IsTerminal(int(os.Stderr.Fd()))

	width, height := 80, 24 // sensible defaults

	if isTTY {
		if w, h, err := term.GetSize(stdoutFD); err == nil {
			width, height = w, h
		}
	}

	// Check NO_COLOR environment variable (https://no-color.org/)
	_, noColor := os.LookupEnv("NO_COLOR")

	// Treat TERM=dumb as no-color (terminals that don't support escape sequences)
	if os.Getenv("TERM") == "dumb" {
		noColor = true
	}

	return &Info{
		IsTTY:    isTTY,
		ErrIsTTY: errIsTTY,
		NoColor:  noColor,
		Width:    width,
		Height:   height,
	}
}

// ColorEnabled returns true if colored output should be used.
func (t *Info) ColorEnabled() bool {
	if t.ForceFlag {
		return false
	}

	return t.IsTTY && !t.NoColor
}

// SpinnersEnabled returns true if progress spinners should be drawn. They go
// to stderr so stdout stays clean when piped.
func (t *Info) SpinnersEnabled() bool {
	return t.ErrIsTTY && !t.NoColor && !t.ForceFlag
}
