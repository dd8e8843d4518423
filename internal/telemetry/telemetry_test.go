package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultSettings_TracerIsNoopWhenDisabled(t *testing.T) {
	s := DefaultSettings()
	require.False(t, s.IsEnabled)

	tracer := s.Tracer()
	_, span := tracer.Start(context.Background(), "gateway.request")
	defer span.End()
	require.False(t, span.SpanContext().IsValid(), "a disabled Settings must hand out a no-op tracer")
}

func TestTracer_NilSettingsIsNoop(t *testing.T) {
	var s *Settings
	tracer := s.Tracer()
	require.NotNil(t, tracer)
	_, span := tracer.Start(context.Background(), "gateway.request")
	span.End()
}

func TestRecordSpan_ReturnsResultOnSuccess(t *testing.T) {
	tracer := (&Settings{IsEnabled: false}).Tracer()

	got, err := RecordSpan(context.Background(), tracer, SpanOptions{Name: "gateway.normalize"},
		func(ctx context.Context, span trace.Span) (int, error) {
			return 42, nil
		})
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestRecordSpan_PropagatesErrorAndZeroValue(t *testing.T) {
	tracer := (&Settings{IsEnabled: false}).Tracer()
	wantErr := errors.New("boom")

	got, err := RecordSpan(context.Background(), tracer, SpanOptions{Name: "gateway.route"},
		func(ctx context.Context, span trace.Span) (string, error) {
			return "unused", wantErr
		})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, "", got)
}

func TestRequestAttributes_CarriesEndpointProviderModel(t *testing.T) {
	attrs := RequestAttributes("anthropic", "anthropic-prod", "claude-3-5-sonnet")
	require.Len(t, attrs, 3)
	require.Equal(t, "gateway.endpoint", string(attrs[0].Key))
	require.Equal(t, "anthropic", attrs[0].Value.AsString())
	require.Equal(t, "gateway.provider", string(attrs[1].Key))
	require.Equal(t, "anthropic-prod", attrs[1].Value.AsString())
	require.Equal(t, "gateway.model", string(attrs[2].Key))
	require.Equal(t, "claude-3-5-sonnet", attrs[2].Value.AsString())
}
