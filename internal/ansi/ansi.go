// Package ansi cleans raw server output for display.
package ansi

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// Strip removes ANSI escape sequences from a string.
func Strip(s string) string {
	return xansi.Strip(s)
}

// Clean strips escape sequences and normalizes the CRLF line endings a
// pseudo-terminal produces to LF.
func Clean(b []byte) string {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	return Strip(s)
}

// Tail returns the last n non-blank lines of b, cleaned and truncated to
// width display cells. A non-positive width disables truncation.
func Tail(b []byte, n, width int) string {
	if n <= 0 {
		return ""
	}

	lines := strings.Split(Clean(b), "\n")
	kept := make([]string, 0, n)

	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		line := strings.TrimRight(lines[i], " \t\r")
		if line == "" {
			continue
		}

		if width > 0 {
			line = runewidth.Truncate(line, width, "...")
		}

		kept = append(kept, line)
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	return strings.Join(kept, "\n")
}
