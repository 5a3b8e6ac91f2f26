package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/musher-dev/mcpprobe/internal/output"
	"github.com/musher-dev/mcpprobe/internal/terminal"
)

func testPrompter(input string) (*Prompter, *bytes.Buffer) {
	var buf bytes.Buffer

	term := &terminal.Info{NoColor: true, Width: 80, Height: 24}
	out := output.NewWriter(&bytes.Buffer{}, &buf, term)

	return NewWithReader(out, strings.NewReader(input), true), &buf
}

func TestIsCanceled(t *testing.T) {
	if !IsCanceled(errCanceled) {
		t.Fatal("IsCanceled(errCanceled) = false, want true")
	}

	if !IsCanceled(errors.Join(errors.New("other"), errCanceled)) {
		t.Fatal("IsCanceled(wrapped errCanceled) = false, want true")
	}

	if IsCanceled(errors.New("not canceled")) {
		t.Fatal("IsCanceled(unrelated error) = true, want false")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		def   bool
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", def: true, want: false},
		{input: "\n", def: true, want: true},
		{input: "\n", def: false, want: false},
		{input: "y", want: true},
	}

	for _, tt := range tests {
		p, buf := testPrompter(tt.input)

		got, err := p.Confirm("Delete 3 saved runs?", tt.def)
		if err != nil {
			t.Fatalf("Confirm(%q) error = %v", tt.input, err)
		}

		if got != tt.want {
			t.Errorf("Confirm(%q, default %v) = %v, want %v", tt.input, tt.def, got, tt.want)
		}

		if !strings.HasPrefix(buf.String(), "Delete 3 saved runs? [") {
			t.Errorf("prompt written = %q, want it on stderr", buf.String())
		}
	}
}

func TestConfirm_EOF(t *testing.T) {
	p, _ := testPrompter("")

	got, err := p.Confirm("Continue?", false)
	if !IsCanceled(err) {
		t.Fatalf("Confirm() error = %v, want canceled", err)
	}

	if got {
		t.Fatal("Confirm() = true on EOF, want the default")
	}
}

func TestSelect_RetriesInvalidInput(t *testing.T) {
	p, buf := testPrompter("\nabc\n9\n2\n")

	got, err := p.Select("Pick a run:", []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if got != 1 {
		t.Fatalf("Select() = %d, want 1", got)
	}

	if n := strings.Count(buf.String(), "Invalid selection"); n != 2 {
		t.Fatalf("invalid selection warnings = %d, want 2\n%s", n, buf.String())
	}
}

func TestSelect_NoOptions(t *testing.T) {
	p, _ := testPrompter("1\n")

	if _, err := p.Select("Pick:", nil); err == nil {
		t.Fatal("Select() with no options should fail")
	}
}

func TestCanPrompt(t *testing.T) {
	p, _ := testPrompter("")
	if !p.CanPrompt() {
		t.Fatal("CanPrompt() = false for an interactive prompter")
	}

	var buf bytes.Buffer

	out := output.NewWriter(&buf, &buf, &terminal.Info{NoColor: true})
	out.JSON = true

	if NewWithReader(out, strings.NewReader(""), true).CanPrompt() {
		t.Fatal("CanPrompt() = true in JSON mode")
	}
}
