package harness

import (
	"errors"
	"fmt"

	"github.com/musher-dev/mcpprobe/internal/protocol"
)

// Failure kinds. Every error returned by this package wraps exactly one of
// these, so callers classify failures with errors.Is.
var (
	// ErrSpawn means the child process could not be created.
	ErrSpawn = errors.New("spawn failed")

	// ErrTimeout means a bounded wait expired before its condition held.
	ErrTimeout = errors.New("timed out")

	// ErrEndOfStream means the child closed its output before the expected marker.
	ErrEndOfStream = errors.New("end of stream")

	// ErrBrokenPipe means a write to the child failed because its input is gone.
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrDecode means captured output could not be decoded as a protocol response.
	ErrDecode = protocol.ErrDecode
)

// StageError describes a failed round-trip step.
type StageError struct {
	// Stage is the state the run was trying to reach.
	Stage State

	// Kind is one of the package failure sentinels.
	Kind error

	// Captured is the raw output observed before the failure.
	Captured []byte

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	msg := e.Kind.Error()
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", string(e.Stage), msg)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

// Unwrap exposes both the failure kind and the cause to errors.Is/As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// AsStageError is a convenience wrapper around errors.As.
func AsStageError(err error) (*StageError, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr, true
	}

	return nil, false
}

func newStageError(kind error, captured []byte, cause error) *StageError {
	return &StageError{
		Kind:     kind,
		Captured: captured,
		Err:      cause,
	}
}

// atStage stamps the stage on err if it is a StageError without one,
// and wraps any other error as a StageError of kind fallback.
func atStage(err error, stage State, fallback error) error {
	if err == nil {
		return nil
	}

	if stageErr, ok := AsStageError(err); ok {
		if stageErr.Stage == "" {
			stageErr.Stage = stage
		}

		return stageErr
	}

	return &StageError{Stage: stage, Kind: fallback, Err: err}
}
