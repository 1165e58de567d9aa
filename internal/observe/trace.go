package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/streamscribe"

// Span and event attribute keys recorded by streams and sessions.
const (
	SessionIDKey      = attribute.Key("stream.session_id")
	WindowSecondsKey  = attribute.Key("stream.window_seconds")
	OffsetKey         = attribute.Key("stream.offset")
	ConfirmedWordsKey = attribute.Key("stream.confirmed_words")
	ChunkReasonKey    = attribute.Key("reason")
	ChunkAtKey        = attribute.Key("at")
	ChunkSecondsKey   = attribute.Key("cut_seconds")
)

// ChunkEventName names the span event recorded for each audio window cut.
const ChunkEventName = "chunk"

// Tracer returns the streamscribe tracer of tp, or of the global provider
// when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// StartSpan starts a span on the global streamscribe tracer. The caller must
// end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(nil).Start(ctx, name, opts...)
}

// AddChunkEvent records a cut of the audio window at the absolute session
// time at on the span in ctx. cutSeconds is the audio dropped.
func AddChunkEvent(ctx context.Context, reason string, at, cutSeconds float64) {
	trace.SpanFromContext(ctx).AddEvent(ChunkEventName, trace.WithAttributes(
		ChunkReasonKey.String(reason),
		ChunkAtKey.Float64(at),
		ChunkSecondsKey.Float64(cutSeconds),
	))
}

// CorrelationID returns the trace id of the span in ctx, or "" without one.
// HTTP responses echo it so clients can quote it in bug reports.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithSpan returns l with the trace and span ids of ctx attached, so stream
// log lines can be joined with their iteration spans. Without a span l is
// returned as is.
func WithSpan(ctx context.Context, l *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
