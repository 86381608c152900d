package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on run and compare spans.
const (
	AttrModel     = attribute.Key("concbench.model")
	AttrPoolSize  = attribute.Key("concbench.pool_size")
	AttrRequests  = attribute.Key("concbench.requests")
	AttrDelayMs   = attribute.Key("concbench.delay_ms")
	AttrTotalMs   = attribute.Key("concbench.total_time_ms")
	AttrFailed    = attribute.Key("concbench.units_failed")
	AttrCancelled = attribute.Key("concbench.units_cancelled")
	AttrTimeRatio = attribute.Key("concbench.time_ratio")
)

// StartRunSpan starts a span covering one benchmark run of model.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, model string, poolSize, requests int, delay time.Duration) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "run "+model,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		AttrModel.String(model),
		AttrRequests.Int(requests),
		AttrDelayMs.Int64(delay.Milliseconds()),
	)
	if poolSize > 0 {
		span.SetAttributes(AttrPoolSize.Int(poolSize))
	}
	return ctx, span
}

// StartCompareSpan starts the parent span of a bounded/unbounded comparison.
func StartCompareSpan(ctx context.Context, tracer trace.Tracer, requests int, delay time.Duration) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "compare",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		AttrRequests.Int(requests),
		AttrDelayMs.Int64(delay.Milliseconds()),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID returns the hex trace ID of the span in ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
