// Package telemetry wires OpenTelemetry tracing into the request
// pipeline. Adapted from the teacher's pkg/telemetry: the same
// disable-by-default Settings struct and generic RecordSpan helper,
// narrowed to the gateway's span vocabulary (request / normalize /
// route / dispatch / stream) instead of the SDK's generation spans.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const TracerName = "cc-gateway"

// Settings controls whether gateway spans are recorded at all.
type Settings struct {
	IsEnabled   bool
	TracerValue trace.Tracer
}

func DefaultSettings() *Settings {
	return &Settings{IsEnabled: false}
}

// Tracer returns the configured tracer, or a no-op tracer when telemetry
// is disabled, mirroring the teacher's GetTracer.
func (s *Settings) Tracer() trace.Tracer {
	if s == nil || !s.IsEnabled {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	if s.TracerValue != nil {
		return s.TracerValue
	}
	return otel.Tracer(TracerName)
}

// SpanOptions configures one span.
type SpanOptions struct {
	Name       string
	Attributes []attribute.KeyValue
}

// RecordSpan runs fn inside a span, recording any returned error and
// always ending the span. Generic over the function's result type so
// every pipeline stage (normalize, route, dispatch) can reuse it
// without boxing its result in interface{}.
func RecordSpan[T any](
	ctx context.Context,
	tracer trace.Tracer,
	opts SpanOptions,
	fn func(context.Context, trace.Span) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, opts.Name, trace.WithAttributes(opts.Attributes...))
	defer span.End()

	result, err := fn(ctx, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero T
		return zero, err
	}
	return result, nil
}

// RequestAttributes returns the base span attributes attached to
// every pipeline span: endpoint/provider/model identify the request
// without leaking its content.
func RequestAttributes(endpoint, provider, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("gateway.endpoint", endpoint),
		attribute.String("gateway.provider", provider),
		attribute.String("gateway.model", model),
	}
}
