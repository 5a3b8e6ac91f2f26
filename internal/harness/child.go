//go:build unix

package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Transport selects how the child's stdio is attached.
type Transport string

const (
	// TransportPipe merges stdout and stderr into a single OS pipe.
	TransportPipe Transport = "pipe"

	// TransportPTY attaches the child to a pseudo-terminal. Input is echoed
	// back on the output stream, as with an interactive terminal.
	TransportPTY Transport = "pty"
)

const defaultShutdownDeadline = 2 * time.Second

// eofChar is VEOF in canonical terminal mode (^D).
const eofChar = 0x04

// SpawnOptions configures a child process.
type SpawnOptions struct {
	// Command is the argv of the server; Command[0] is resolved via PATH.
	Command []string

	// Env is the complete child environment. Nil inherits the caller's.
	Env []string

	// Dir is the working directory. Empty uses the caller's.
	Dir string

	// Timeout bounds every blocking wait on the child. Must be positive.
	Timeout time.Duration

	// Transport defaults to TransportPipe.
	Transport Transport

	// ShutdownDeadline is how long Close waits after each signal.
	ShutdownDeadline time.Duration
}

// Child is a running server process with its stdio attached.
type Child struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	pid    int
	pgid   int
	closed bool

	inputClosed bool

	stdin  io.WriteCloser
	output io.Closer
	expect *Expecter

	transport        Transport
	timeout          time.Duration
	shutdownDeadline time.Duration

	exited  chan struct{}
	waitErr error
}

// Spawn starts the child described by opts.
func Spawn(ctx context.Context, opts *SpawnOptions) (*Child, error) {
	if opts == nil || len(opts.Command) == 0 || strings.TrimSpace(opts.Command[0]) == "" {
		return nil, newStageError(ErrSpawn, nil, errors.New("command is empty"))
	}

	if opts.Timeout <= 0 {
		return nil, newStageError(ErrSpawn, nil, fmt.Errorf("timeout must be positive, got %s", opts.Timeout))
	}

	path, err := exec.LookPath(opts.Command[0])
	if err != nil {
		return nil, newStageError(ErrSpawn, nil, err)
	}

	cmd := exec.CommandContext(ctx, path, opts.Command[1:]...) //nolint:gosec // G204: the server command is operator configuration
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir

	// Cancellation takes the whole process group down, not just the leader.
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	child := &Child{
		cmd:              cmd,
		transport:        opts.Transport,
		timeout:          opts.Timeout,
		shutdownDeadline: opts.ShutdownDeadline,
		exited:           make(chan struct{}),
	}

	if child.transport == "" {
		child.transport = TransportPipe
	}

	if child.shutdownDeadline <= 0 {
		child.shutdownDeadline = defaultShutdownDeadline
	}

	var reader io.Reader

	switch child.transport {
	case TransportPipe:
		reader, err = child.startPipe()
	case TransportPTY:
		reader, err = child.startPTY()
	default:
		err = fmt.Errorf("unknown transport %q", child.transport)
	}

	if err != nil {
		return nil, newStageError(ErrSpawn, nil, err)
	}

	// Both transports make the child a process group leader.
	child.pid = cmd.Process.Pid
	child.pgid = child.pid

	if pgid, pgErr := unix.Getpgid(child.pid); pgErr == nil {
		child.pgid = pgid
	}

	child.expect = NewExpecter(reader)

	go func() {
		waitErr := cmd.Wait()

		child.mu.Lock()
		child.waitErr = waitErr
		child.mu.Unlock()

		close(child.exited)
	}()

	slog.Default().Debug(
		"child process started",
		slog.String("component", "harness"),
		slog.String("event.type", "harness.child.start"),
		slog.Int("child.pid", child.pid),
		slog.String("child.transport", string(child.transport)),
		slog.Any("child.args", opts.Command),
	)

	return child, nil
}

// startPipe wires stdin to a pipe and both stdout and stderr to one shared
// pipe so markers arrive in the order the child wrote them.
func (c *Child) startPipe() (io.Reader, error) {
	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("output pipe: %w", err)
	}

	c.cmd.Stdout = outW
	c.cmd.Stderr = outW
	c.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.cmd.Start(); err != nil {
		_ = outR.Close()
		_ = outW.Close()

		return nil, err
	}

	// The child holds its own copy; ours must go so EOF arrives on exit.
	_ = outW.Close()

	c.stdin = stdin
	c.output = outR

	return outR, nil
}

// startPTY runs the child on a new pseudo-terminal in its own session.
func (c *Child) startPTY() (io.Reader, error) {
	ptmx, err := pty.Start(c.cmd)
	if err != nil {
		return nil, err
	}

	c.stdin = ptmx
	c.output = ptmx

	return eioReader{r: ptmx}, nil
}

// eioReader maps EIO, which Linux returns from a pty master once the slave
// side has closed, to io.EOF.
type eioReader struct {
	r io.Reader
}

func (r eioReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if errors.Is(err, unix.EIO) {
		return n, io.EOF
	}

	return n, err
}

// Pid returns the child's process id.
func (c *Child) Pid() int {
	return c.pid
}

// Timeout returns the per-wait timeout.
func (c *Child) Timeout() time.Duration {
	return c.timeout
}

// Exited reports whether the child process has terminated.
func (c *Child) Exited() bool {
	select {
	case <-c.exited:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit status once the child has exited, or -1.
func (c *Child) ExitCode() int {
	if !c.Exited() {
		return -1
	}

	return c.cmd.ProcessState.ExitCode()
}

// Expect waits for p in the child's output, bounded by the child timeout.
func (c *Child) Expect(p Pattern) (Match, error) {
	return c.expect.Expect(p, c.timeout)
}

// Send writes payload and a line terminator to the child's input.
func (c *Child) Send(payload []byte) error {
	if c.Exited() {
		return newStageError(ErrBrokenPipe, c.expect.Buffered(), errors.New("child has exited"))
	}

	c.mu.Lock()
	closed := c.inputClosed
	c.mu.Unlock()

	if closed {
		return newStageError(ErrBrokenPipe, c.expect.Buffered(), errors.New("input closed"))
	}

	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	line = append(line, '\n')

	if _, err := c.stdin.Write(line); err != nil {
		return newStageError(ErrBrokenPipe, c.expect.Buffered(), err)
	}

	return nil
}

// CloseInput signals end of input to the child. On a pipe the write end is
// closed; on a PTY an EOF character is written, which a line-buffered reader
// sees as end of file. Calling it more than once is a no-op.
func (c *Child) CloseInput() error {
	c.mu.Lock()
	if c.inputClosed {
		c.mu.Unlock()
		return nil
	}

	c.inputClosed = true
	c.mu.Unlock()

	if c.transport == TransportPTY {
		if _, err := c.stdin.Write([]byte{eofChar}); err != nil {
			return newStageError(ErrBrokenPipe, c.expect.Buffered(), err)
		}

		return nil
	}

	if err := c.stdin.Close(); err != nil {
		return newStageError(ErrBrokenPipe, c.expect.Buffered(), err)
	}

	return nil
}

// Drain reads output until the child closes it. A silent gap longer than
// the child timeout fails with ErrTimeout.
func (c *Child) Drain() ([]byte, error) {
	return c.expect.Drain(c.timeout)
}

// Close terminates the child if it is still running and releases its
// streams. Calling Close more than once is a no-op.
func (c *Child) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	c.mu.Unlock()

	if c.transport == TransportPipe {
		_ = c.stdin.Close()
	}

	if !c.Exited() {
		slog.Default().Debug(
			"stopping child process",
			slog.String("component", "harness"),
			slog.String("event.type", "harness.child.stop"),
			slog.Int("child.pid", c.pid),
		)

		sendSignal(c.pid, c.pgid, unix.SIGTERM)

		select {
		case <-c.exited:
		case <-time.After(c.shutdownDeadline):
			sendSignal(c.pid, c.pgid, unix.SIGKILL)

			select {
			case <-c.exited:
			case <-time.After(c.shutdownDeadline):
			}
		}
	}

	_ = c.output.Close()
	c.expect.Stop()

	return nil
}

func sendSignal(pid, pgid int, sig syscall.Signal) {
	if pgid > 0 {
		if err := unix.Kill(-pgid, sig); err == nil || errors.Is(err, unix.ESRCH) {
			return
		}
	}

	if pid <= 0 {
		return
	}

	_ = unix.Kill(pid, sig)
}

// Ensure Child satisfies io.Closer.
var _ io.Closer = (*Child)(nil)
