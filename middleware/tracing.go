package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/weave/executor"
)

// tracerName is the instrumentation scope name for weave tracing.
const tracerName = "github.com/xraph/weave"

// Tracing returns middleware that wraps node execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: weave.node.id, weave.node.type,
// weave.execution.id. On error, the span status is set to codes.Error
// with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, req *executor.Request, next Handler) (executor.Context, error) {
		ctx, span := tracer.Start(ctx, "weave.node.execute",
			trace.WithAttributes(
				attribute.String("weave.node.id", req.NodeID),
				attribute.String("weave.node.type", string(req.Type)),
				attribute.String("weave.execution.id", req.Step.ExecutionID().String()),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return out, err
	}
}
