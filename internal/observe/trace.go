package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/alakbarr/Interview-Matrix"

// Span attribute keys shared by the session and HTTP spans.
const (
	AttrSessionID    = attribute.Key("session.id")
	AttrSessionTopic = attribute.Key("session.topic")
	AttrLiveModel    = attribute.Key("live.model")
	AttrEndReason    = attribute.Key("session.end_reason")
)

// Tracer returns the matrixvoice tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartSessionSpan opens the long-lived span covering one voice session,
// from the start request until teardown.
func StartSessionSpan(ctx context.Context, id, topic, model string) (context.Context, trace.Span) {
	return StartSpan(ctx, "voice.session",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrSessionID.String(id),
			AttrSessionTopic.String(topic),
			AttrLiveModel.String(model),
		),
	)
}

// EndSessionSpan closes a span opened by [StartSessionSpan]. A nil cause
// marks a user-requested stop.
func EndSessionSpan(span trace.Span, cause error) {
	if cause == nil {
		span.SetAttributes(AttrEndReason.String("stopped"))
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(AttrEndReason.String("error"))
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
	}
	span.End()
}

// CorrelationID is the hex trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns slog.Default, tagged with trace_id and span_id when ctx
// carries a recording span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
