package step

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/weave/id"
)

// tracerName is the instrumentation scope for step telemetry.
const tracerName = "github.com/xraph/weave/step"

// Runtime executes named durable steps for a single workflow run.
// It is created by the engine per execution and handed to node
// executors; it is not safe to share across executions.
type Runtime struct {
	executionID id.ExecutionID
	store       Store
	emitter     Emitter
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithEmitter sets the step lifecycle emitter.
func WithEmitter(e Emitter) Option {
	return func(r *Runtime) { r.emitter = e }
}

// WithTracer sets the tracer used by Infer. Defaults to the global
// tracer provider (a no-op unless one is installed).
func WithTracer(t trace.Tracer) Option {
	return func(r *Runtime) { r.tracer = t }
}

// NewRuntime creates a step runtime bound to one execution.
func NewRuntime(executionID id.ExecutionID, store Store, logger *slog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		executionID: executionID,
		store:       store,
		emitter:     NopEmitter{},
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExecutionID returns the execution this runtime is bound to.
func (r *Runtime) ExecutionID() id.ExecutionID { return r.executionID }

// Do executes a named step with no result value. If a checkpoint
// exists for this step name, the step is skipped (idempotent replay).
// Otherwise fn is executed and an empty checkpoint is saved on success.
func (r *Runtime) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	data, err := r.store.GetCheckpoint(ctx, r.executionID, name)
	if err != nil {
		return fmt.Errorf("step %q: get checkpoint: %w", name, err)
	}
	if data != nil {
		r.logger.Debug("skipping checkpointed step",
			slog.String("execution_id", r.executionID.String()),
			slog.String("step", name),
		)
		return nil
	}

	start := time.Now()
	stepErr := fn(ctx)
	elapsed := time.Since(start)

	if stepErr != nil {
		r.emitter.EmitStepFailed(ctx, r.executionID, name, stepErr)
		return fmt.Errorf("step %q: %w", name, stepErr)
	}

	if saveErr := r.store.SaveCheckpoint(ctx, r.executionID, name, []byte{}); saveErr != nil {
		return fmt.Errorf("step %q: save checkpoint: %w", name, saveErr)
	}

	r.emitter.EmitStepCompleted(ctx, r.executionID, name, elapsed)
	return nil
}

// Run executes a named step that returns a typed value. The result is
// serialized as JSON and saved as a checkpoint; on replay the recorded
// result is deserialized and returned without re-executing fn.
//
// Once fn has returned successfully the side effect is done: any
// failure after that point (encode, save) surfaces as an error but the
// recorded step boundary means a redelivery will re-run fn. Keep
// results JSON-serializable.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Run[T any](ctx context.Context, r *Runtime, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, err := r.store.GetCheckpoint(ctx, r.executionID, name)
	if err != nil {
		return zero, fmt.Errorf("step %q: get checkpoint: %w", name, err)
	}
	if data != nil {
		var result T
		if decErr := json.Unmarshal(data, &result); decErr != nil {
			return zero, fmt.Errorf("step %q: decode checkpoint: %w", name, decErr)
		}
		r.logger.Debug("returning checkpointed result",
			slog.String("execution_id", r.executionID.String()),
			slog.String("step", name),
		)
		return result, nil
	}

	start := time.Now()
	result, stepErr := fn(ctx)
	elapsed := time.Since(start)

	if stepErr != nil {
		r.emitter.EmitStepFailed(ctx, r.executionID, name, stepErr)
		return zero, fmt.Errorf("step %q: %w", name, stepErr)
	}

	encoded, encErr := json.Marshal(result)
	if encErr != nil {
		return zero, fmt.Errorf("step %q: encode checkpoint: %w", name, encErr)
	}
	if saveErr := r.store.SaveCheckpoint(ctx, r.executionID, name, encoded); saveErr != nil {
		return zero, fmt.Errorf("step %q: save checkpoint: %w", name, saveErr)
	}

	r.emitter.EmitStepCompleted(ctx, r.executionID, name, elapsed)
	return result, nil
}

// Infer executes a generative-model call as a durable step, wrapping
// it in an OpenTelemetry span that records the model call's outcome.
// Replay semantics are identical to Run: an already-recorded model
// response is returned without re-invoking the model, and the span is
// marked as replayed.
func Infer[T any](ctx context.Context, r *Runtime, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := r.tracer.Start(ctx, "weave.step.infer",
		trace.WithAttributes(
			attribute.String("weave.execution.id", r.executionID.String()),
			attribute.String("weave.step.name", name),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	replayed := true
	wrapped := func(ctx context.Context) (T, error) {
		replayed = false
		return fn(ctx)
	}

	result, err := Run(ctx, r, name, wrapped)
	span.SetAttributes(attribute.Bool("weave.step.replayed", replayed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}
