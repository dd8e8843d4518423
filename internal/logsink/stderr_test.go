package logsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStderrSink_RecordLogAssignsID(t *testing.T) {
	s := NewStderrSink(nil)
	id, err := s.RecordLog(context.Background(), LogRecord{Endpoint: "anthropic", Provider: "p1", Model: "m1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestStderrSink_RecordLogKeepsCallerID(t *testing.T) {
	s := NewStderrSink(nil)
	id, err := s.RecordLog(context.Background(), LogRecord{ID: "fixed-id"})
	require.NoError(t, err)
	require.Equal(t, "fixed-id", id)
}

func TestStderrSink_UpdateMetricsAccumulates(t *testing.T) {
	s := NewStderrSink(nil)
	ctx := context.Background()
	require.NoError(t, s.UpdateMetrics(ctx, "2026-07-31", MetricsDelta{Requests: 1, InputTokens: 10, OutputTokens: 5}))
	require.NoError(t, s.UpdateMetrics(ctx, "2026-07-31", MetricsDelta{Requests: 1, InputTokens: 20, OutputTokens: 7}))

	got := s.MetricsForDay("2026-07-31")
	require.Equal(t, 2, got.Requests)
	require.Equal(t, 30, got.InputTokens)
	require.Equal(t, 12, got.OutputTokens)
}

func TestStderrSink_FinalizeAndUpsertNeverError(t *testing.T) {
	s := NewStderrSink(nil)
	ctx := context.Background()
	ttft := int64(120)
	require.NoError(t, s.FinalizeLog(ctx, "id1", 200, "", 450, &ttft, nil))
	require.NoError(t, s.UpsertLogPayload(ctx, "id1", PayloadRecord{Prompt: "hi"}))
	require.NoError(t, s.UpdateLogTokens(ctx, "id1", 1, 2, 0, 0))
}

func TestObfuscateKey(t *testing.T) {
	require.Equal(t, "****", ObfuscateKey("short"))
	require.Equal(t, "sk-a…wxyz", ObfuscateKey("sk-abcdefghijwxyz"))
}
