package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope registered with the global
// TracerProvider.
const TracerName = "github.com/mosaicolabs/mosaico-go"

// Tracer returns the package-scope tracer from the global TracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSequenceSpan opens a span covering one SequenceWriter transaction.
func StartSequenceSpan(ctx context.Context, sequenceName string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "mosaico.SequenceWriter",
		trace.WithAttributes(attribute.String("mosaico.sequence", sequenceName)))
}

// StartActionSpan opens a span covering one DoAction round-trip.
func StartActionSpan(ctx context.Context, action, resource string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "mosaico.DoAction",
		trace.WithAttributes(
			attribute.String("mosaico.action", action),
			attribute.String("mosaico.resource", resource),
		))
}

// EndWithError records err on span (if non-nil) and sets the span status
// accordingly, then ends it. Safe to call with a nil error.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
