package harness

import (
	"errors"
	"io"
	"testing"
)

func TestStageErrorMessage(t *testing.T) {
	cause := errors.New(`no match for "result" within 1s`)

	tests := []struct {
		err  *StageError
		want string
	}{
		{&StageError{Stage: StateReady, Kind: ErrEndOfStream}, "ready: end of stream"},
		{&StageError{Stage: StateDrained, Kind: ErrTimeout, Err: cause}, `drained: timed out: no match for "result" within 1s`},
		{&StageError{Stage: StateResponseReceived, Kind: ErrBrokenPipe}, "response_received: broken pipe"},
		{&StageError{Kind: ErrSpawn, Err: cause}, `spawn failed: no match for "result" within 1s`},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestAtStage(t *testing.T) {
	err := atStage(newStageError(ErrEndOfStream, []byte("booting\n"), nil), StateReady, ErrTimeout)

	stageErr, ok := AsStageError(err)
	if !ok || stageErr.Stage != StateReady || !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("atStage() = %v, want an end of stream at ready", err)
	}

	err = atStage(io.ErrUnexpectedEOF, StateSpawned, ErrSpawn)
	if !errors.Is(err, ErrSpawn) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("atStage(foreign) = %v, want ErrSpawn wrapping the cause", err)
	}

	if err.Error() != "spawned: spawn failed: unexpected EOF" {
		t.Fatalf("Error() = %q", err.Error())
	}

	if atStage(nil, StateReady, ErrTimeout) != nil {
		t.Fatal("atStage(nil) != nil")
	}
}
