//go:build unix

package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/musher-dev/mcpprobe/internal/observability"
	"github.com/musher-dev/mcpprobe/internal/protocol"
)

const tracerName = "github.com/musher-dev/mcpprobe/internal/harness"

// Plan describes one round trip against a server.
type Plan struct {
	// Spawn configures the server process.
	Spawn SpawnOptions

	// Ready marks the point at which the server accepts input.
	Ready Pattern

	// Result marks the start of the server's reply.
	Result Pattern

	// Request is the single call sent once the server is ready.
	Request *protocol.Request

	// Decode additionally parses the captured reply as a JSON-RPC response.
	// A JSON-RPC error reply then satisfies the result wait even though it
	// carries no result marker, provided the server exits after sending it.
	Decode bool

	// CloseInput closes the server's input once the result marker is seen,
	// so servers that keep serving until end of input exit and the drain
	// can complete.
	CloseInput bool

	// OnTransition, if set, is called after every state change.
	OnTransition func(from, to State)

	// OnOutput, if set, receives the bytes each completed stage captured
	// (or, for StateRequestSent, wrote) as soon as the stage completes.
	OnOutput func(stage State, data []byte)
}

// Transcript is everything observed during a round trip.
type Transcript struct {
	// Pid is the server's process id, zero if it never started.
	Pid int

	// Request is the serialized line sent to the server, without terminator.
	Request []byte

	// Ready is the output up to and including the ready marker.
	Ready Match

	// Response is the output between the ready marker and the result marker,
	// split at the result marker.
	Response Match

	// Tail is the output drained after the result marker until the server exited.
	Tail []byte

	// Decoded is set when the plan asked for structured decoding.
	Decoded *protocol.Response

	// State is the final state, always StateClosed once RoundTrip returns.
	State State

	// FailedAt is the state the run failed to reach, empty on success.
	FailedAt State

	// Durations records how long reaching each state took.
	Durations map[State]time.Duration
}

// Output returns the response capture followed by the drained tail: the
// complete observable reply of the run.
func (t *Transcript) Output() []byte {
	var buf bytes.Buffer

	buf.Write(t.Response.Before)
	buf.Write(t.Response.After)
	buf.Write(t.Tail)

	return buf.Bytes()
}

// Validate checks that the plan can be executed.
func (p *Plan) Validate() error {
	switch {
	case p == nil:
		return errors.New("plan is nil")
	case p.Ready == nil:
		return errors.New("ready pattern is required")
	case p.Result == nil:
		return errors.New("result pattern is required")
	case p.Request == nil:
		return errors.New("request is required")
	}

	return nil
}

// RoundTrip spawns the server, waits for readiness, sends the request,
// waits for the reply marker and drains the remaining output. The child is
// closed on every path. On failure the partial transcript is returned
// alongside the error so callers can show what was captured.
func RoundTrip(ctx context.Context, plan *Plan) (*Transcript, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	line, err := plan.Request.Encode()
	if err != nil {
		return nil, err
	}

	r := &run{
		plan:   plan,
		logger: observability.FromContext(ctx),
		tracer: observability.Tracer(tracerName),
		transcript: &Transcript{
			Request:   line,
			State:     StateNotStarted,
			Durations: make(map[State]time.Duration),
		},
	}

	ctx, span := r.tracer.Start(ctx, "harness.round_trip", trace.WithAttributes(
		attribute.String("rpc.method", plan.Request.Method),
		attribute.String("mcp.tool", plan.Request.ToolName()),
		attribute.Int64("rpc.id", plan.Request.ID),
		attribute.String("harness.transport", string(plan.Spawn.Transport)),
	))

	err = r.execute(ctx)

	span.SetAttributes(
		attribute.Int("child.pid", r.transcript.Pid),
		attribute.String("harness.state", string(r.transcript.State)),
		attribute.Int("harness.output_bytes", len(r.transcript.Output())),
	)
	observability.EndSpan(span, err)

	return r.transcript, err
}

type run struct {
	plan       *Plan
	logger     *slog.Logger
	tracer     trace.Tracer
	transcript *Transcript
	child      *Child
}

func (r *run) execute(ctx context.Context) error {
	defer r.close(ctx)

	if err := r.step(ctx, StateSpawned, func(ctx context.Context) error {
		child, spawnErr := Spawn(ctx, &r.plan.Spawn)
		if spawnErr != nil {
			return spawnErr
		}

		r.child = child
		r.transcript.Pid = child.Pid()

		r.logger.Info(
			"server spawned",
			slog.String("component", "harness"),
			slog.String("event.type", "harness.spawned"),
			slog.Int("child.pid", child.Pid()),
			slog.Any("child.env", observability.RedactEnv(r.plan.Spawn.Env)),
		)

		return nil
	}); err != nil {
		return err
	}

	if err := r.step(ctx, StateReady, func(context.Context) error {
		m, expectErr := r.child.Expect(r.plan.Ready)
		r.transcript.Ready = m

		return expectErr
	}); err != nil {
		return err
	}

	if err := r.step(ctx, StateRequestSent, func(context.Context) error {
		return r.child.Send(r.transcript.Request)
	}); err != nil {
		return err
	}

	if err := r.step(ctx, StateResponseReceived, func(context.Context) error {
		m, expectErr := r.child.Expect(r.plan.Result)
		r.transcript.Response = m

		if expectErr != nil && r.plan.Decode && isErrorReply(expectErr, r.plan.Request.ID) {
			// The reply stays buffered; Drain returns it and Decode reports it.
			r.logger.Info(
				"server replied with an error instead of a result",
				slog.String("component", "harness"),
				slog.String("event.type", "harness.error_reply"),
			)

			return nil
		}

		return expectErr
	}); err != nil {
		return err
	}

	if err := r.step(ctx, StateDrained, func(context.Context) error {
		if r.plan.CloseInput {
			if closeErr := r.child.CloseInput(); closeErr != nil {
				r.logger.Debug(
					"closing server input failed",
					slog.String("component", "harness"),
					slog.String("event.type", "harness.input.close_failed"),
					slog.String("error", closeErr.Error()),
				)
			}
		}

		tail, drainErr := r.child.Drain()
		r.transcript.Tail = tail

		return drainErr
	}); err != nil {
		return err
	}

	if !r.plan.Decode {
		return nil
	}

	return r.step(ctx, StateDecoded, func(context.Context) error {
		resp, decodeErr := protocol.DecodeResponse(r.transcript.Output(), r.plan.Request.ID)
		if decodeErr != nil {
			return newStageError(ErrDecode, r.transcript.Output(), decodeErr)
		}

		r.transcript.Decoded = resp

		return nil
	})
}

// step runs fn to move the run into state to, tracing and logging the
// attempt. A failure leaves the state unchanged and records FailedAt.
func (r *run) step(ctx context.Context, to State, fn func(context.Context) error) error {
	stageCtx, span := r.tracer.Start(ctx, "harness."+string(to))
	started := time.Now()

	err := fn(stageCtx)
	elapsed := time.Since(started)

	if err != nil {
		err = atStage(err, to, fallbackKind(to))
		r.transcript.FailedAt = to

		attrs := []any{
			slog.String("component", "harness"),
			slog.String("event.type", "harness.stage.failed"),
			slog.String("harness.stage", string(to)),
			slog.Duration("harness.elapsed", elapsed),
			slog.String("error", err.Error()),
		}

		if stageErr, ok := AsStageError(err); ok {
			attrs = append(attrs, slog.Int("harness.captured_bytes", len(stageErr.Captured)))
			span.SetAttributes(attribute.Int("harness.captured_bytes", len(stageErr.Captured)))
		}

		r.logger.Error("round trip stage failed", attrs...)
		observability.EndSpan(span, err)

		return err
	}

	r.transcript.Durations[to] = elapsed
	r.transition(to)
	r.emit(to)

	r.logger.Debug(
		"round trip stage reached",
		slog.String("component", "harness"),
		slog.String("event.type", "harness.stage"),
		slog.String("harness.stage", string(to)),
		slog.Duration("harness.elapsed", elapsed),
	)
	observability.EndSpan(span, nil)

	return nil
}

func (r *run) close(ctx context.Context) {
	_, span := r.tracer.Start(ctx, "harness."+string(StateClosed))

	var err error
	if r.child != nil {
		if closeErr := r.child.Close(); closeErr != nil {
			err = fmt.Errorf("close child: %w", closeErr)
		}
	}

	r.transition(StateClosed)
	observability.EndSpan(span, err)
}

// emit hands the output a completed stage captured to the plan's OnOutput.
func (r *run) emit(stage State) {
	if r.plan.OnOutput == nil {
		return
	}

	var data []byte

	switch stage {
	case StateReady:
		data = r.transcript.Ready.Bytes()
	case StateRequestSent:
		data = append(bytes.Clone(r.transcript.Request), '\n')
	case StateResponseReceived:
		data = r.transcript.Response.Bytes()
	case StateDrained:
		data = r.transcript.Tail
	}

	if len(data) > 0 {
		r.plan.OnOutput(stage, data)
	}
}

func (r *run) transition(to State) {
	from := r.transcript.State
	r.transcript.State = to

	if r.plan.OnTransition != nil {
		r.plan.OnTransition(from, to)
	}
}

// isErrorReply reports whether err is an end of stream whose captured output
// holds a JSON-RPC error response to request id.
func isErrorReply(err error, id int64) bool {
	stageErr, ok := AsStageError(err)
	if !ok || !errors.Is(err, ErrEndOfStream) {
		return false
	}

	resp, decodeErr := protocol.DecodeResponse(stageErr.Captured, id)

	return decodeErr == nil && !resp.OK()
}

// fallbackKind classifies errors that did not come from this package's
// primitives (for example a canceled context).
func fallbackKind(to State) error {
	switch to {
	case StateSpawned:
		return ErrSpawn
	case StateRequestSent:
		return ErrBrokenPipe
	case StateDecoded:
		return ErrDecode
	default:
		return ErrEndOfStream
	}
}
