package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"
)

// readChunkSize bounds a single read from the child's output.
const readChunkSize = 4096

// Pattern locates a marker in accumulated output.
type Pattern interface {
	// Find returns the [start, end) byte offsets of the leftmost match, or nil.
	Find(b []byte) []int

	// String returns the pattern source for logs and errors.
	String() string
}

type literalPattern string

// Literal returns a Pattern matching s verbatim.
func Literal(s string) Pattern {
	return literalPattern(s)
}

func (p literalPattern) Find(b []byte) []int {
	idx := bytes.Index(b, []byte(p))
	if idx < 0 {
		return nil
	}

	return []int{idx, idx + len(p)}
}

func (p literalPattern) String() string {
	return string(p)
}

type regexpPattern struct {
	re *regexp.Regexp
}

// Regexp returns a Pattern backed by a compiled regular expression.
func Regexp(re *regexp.Regexp) Pattern {
	return regexpPattern{re: re}
}

func (p regexpPattern) Find(b []byte) []int {
	return p.re.FindIndex(b)
}

func (p regexpPattern) String() string {
	return p.re.String()
}

// ParsePattern builds a literal or regular-expression Pattern from s.
func ParsePattern(s string, regex bool) (Pattern, error) {
	if s == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	if !regex {
		return Literal(s), nil
	}

	re, err := regexp.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", s, err)
	}

	// A pattern matching empty input would match before any output arrives.
	if re.MatchString("") {
		return nil, fmt.Errorf("pattern %q matches empty output", s)
	}

	return Regexp(re), nil
}

// Match is the result of a successful Expect.
type Match struct {
	// Before is the output preceding the match.
	Before []byte

	// After is the matched text itself.
	After []byte
}

// Bytes returns Before followed by After.
func (m Match) Bytes() []byte {
	out := make([]byte, 0, len(m.Before)+len(m.After))
	out = append(out, m.Before...)

	return append(out, m.After...)
}

type chunk struct {
	data []byte
	err  error
}

// Expecter is an incremental-buffer matcher over a byte stream.
//
// A single goroutine pumps the reader into a channel so that waits can be
// bounded by a timer; the Expecter itself must be used from one goroutine.
// Output after a match stays buffered and is seen by the next Expect or Drain.
type Expecter struct {
	chunks <-chan chunk
	done   chan struct{}
	stop   sync.Once

	buf     []byte
	eof     bool
	readErr error
}

// NewExpecter starts pumping r and returns an Expecter over it.
func NewExpecter(r io.Reader) *Expecter {
	ch := make(chan chunk, 16)
	done := make(chan struct{})

	go pump(r, ch, done)

	return &Expecter{chunks: ch, done: done}
}

func pump(r io.Reader, ch chan<- chunk, done <-chan struct{}) {
	defer close(ch)

	for {
		buf := make([]byte, readChunkSize)

		n, err := r.Read(buf)
		if n > 0 {
			select {
			case ch <- chunk{data: buf[:n]}:
			case <-done:
				return
			}
		}

		if err == nil {
			continue
		}

		if !errors.Is(err, io.EOF) {
			select {
			case ch <- chunk{err: err}:
			case <-done:
			}
		}

		return
	}
}

// Expect blocks until p matches the buffered output, the stream ends, or
// timeout elapses. The timeout covers the whole call; a non-positive
// timeout waits indefinitely.
func (e *Expecter) Expect(p Pattern, timeout time.Duration) (Match, error) {
	if m, ok := e.search(p); ok {
		return m, nil
	}

	if e.eof {
		return Match{}, e.endOfStream()
	}

	timer, expired := newTimer(timeout)
	defer stopTimer(timer)

	for {
		select {
		case c, ok := <-e.chunks:
			if !e.accept(c, ok) {
				return Match{}, e.endOfStream()
			}

			if m, found := e.search(p); found {
				return m, nil
			}
		case <-expired:
			return Match{}, newStageError(ErrTimeout, e.Buffered(),
				fmt.Errorf("no match for %q within %s", p.String(), timeout))
		}
	}
}

// Drain returns all remaining output until the stream ends. The timeout is
// re-armed after every chunk, so only a silent gap longer than timeout fails.
func (e *Expecter) Drain(timeout time.Duration) ([]byte, error) {
	out := e.buf
	e.buf = nil

	for !e.eof {
		timer, expired := newTimer(timeout)

		select {
		case c, ok := <-e.chunks:
			stopTimer(timer)

			if e.accept(c, ok) {
				out = append(out, e.buf...)
				e.buf = nil
			}
		case <-expired:
			return out, newStageError(ErrTimeout, out,
				fmt.Errorf("no output for %s while draining", timeout))
		}
	}

	if e.readErr != nil {
		return out, fmt.Errorf("read output: %w", e.readErr)
	}

	return out, nil
}

// Buffered returns a copy of output read but not yet consumed.
func (e *Expecter) Buffered() []byte {
	return bytes.Clone(e.buf)
}

// Stop releases the pump goroutine. The underlying reader must be closed
// separately for a pending Read to return.
func (e *Expecter) Stop() {
	e.stop.Do(func() {
		close(e.done)
	})
}

// accept folds one pump event into the buffer and reports whether the
// stream is still open.
func (e *Expecter) accept(c chunk, ok bool) bool {
	if !ok {
		e.eof = true
		return false
	}

	if c.err != nil {
		e.eof = true
		e.readErr = c.err

		return false
	}

	e.buf = append(e.buf, c.data...)

	return true
}

func (e *Expecter) search(p Pattern) (Match, bool) {
	loc := p.Find(e.buf)
	if loc == nil {
		return Match{}, false
	}

	m := Match{
		Before: bytes.Clone(e.buf[:loc[0]]),
		After:  bytes.Clone(e.buf[loc[0]:loc[1]]),
	}

	e.buf = bytes.Clone(e.buf[loc[1]:])

	return m, true
}

func (e *Expecter) endOfStream() error {
	return newStageError(ErrEndOfStream, e.Buffered(), e.readErr)
}

func newTimer(d time.Duration) (*time.Timer, <-chan time.Time) {
	if d <= 0 {
		return nil, nil
	}

	t := time.NewTimer(d)

	return t, t.C
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
