package logsink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// StderrSink is the default Sink: every call is a structured slog
// line, and per-day metric counters are kept in memory for the
// process lifetime (no external store is part of this module's
// scope — spec §1 lists "configuration loading/watching, web UI,
// authentication session store, web-admin REST endpoints" as
// out-of-scope collaborators, and a persistent metrics store is the
// same kind of admin-surface concern).
type StderrSink struct {
	logger *slog.Logger

	mu      sync.Mutex
	metrics map[string]MetricsDelta
}

// NewStderrSink builds a Sink writing through logger, or
// slog.Default() if logger is nil.
func NewStderrSink(logger *slog.Logger) *StderrSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StderrSink{logger: logger, metrics: map[string]MetricsDelta{}}
}

func (s *StderrSink) RecordLog(ctx context.Context, rec LogRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.logger.InfoContext(ctx, "request opened",
		"logId", id, "endpoint", rec.Endpoint, "provider", rec.Provider,
		"model", rec.Model, "clientModel", rec.ClientModel, "stream", rec.Stream,
		"apiKeyId", rec.APIKeyID, "apiKeyName", rec.APIKeyName, "apiKeyValue", rec.APIKeyValue,
	)
	return id, nil
}

func (s *StderrSink) UpdateLogTokens(ctx context.Context, logID string, input, output, cachedRead, cachedCreate int) error {
	s.logger.InfoContext(ctx, "request tokens",
		"logId", logID, "inputTokens", input, "outputTokens", output,
		"cachedRead", cachedRead, "cachedCreate", cachedCreate,
	)
	return nil
}

func (s *StderrSink) FinalizeLog(ctx context.Context, logID string, statusCode int, errMsg string, latencyMs int64, ttftMs, tpotMs *int64) error {
	args := []interface{}{"logId", logID, "statusCode", statusCode, "latencyMs", latencyMs}
	if errMsg != "" {
		args = append(args, "error", errMsg)
	}
	if ttftMs != nil {
		args = append(args, "ttftMs", *ttftMs)
	}
	if tpotMs != nil {
		args = append(args, "tpotMs", *tpotMs)
	}
	s.logger.InfoContext(ctx, "request finalized", args...)
	return nil
}

func (s *StderrSink) UpdateMetrics(ctx context.Context, day string, delta MetricsDelta) error {
	s.mu.Lock()
	cur := s.metrics[day]
	cur.Requests += delta.Requests
	cur.InputTokens += delta.InputTokens
	cur.OutputTokens += delta.OutputTokens
	cur.CachedRead += delta.CachedRead
	cur.CachedCreate += delta.CachedCreate
	cur.LatencyMs += delta.LatencyMs
	s.metrics[day] = cur
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "metrics updated", "day", day,
		"requests", cur.Requests, "inputTokens", cur.InputTokens, "outputTokens", cur.OutputTokens,
	)
	return nil
}

// MetricsForDay returns a snapshot of day's accumulated counters, for
// tests and any future `/metrics`-style introspection.
func (s *StderrSink) MetricsForDay(day string) MetricsDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics[day]
}

func (s *StderrSink) UpsertLogPayload(ctx context.Context, logID string, payload PayloadRecord) error {
	s.logger.DebugContext(ctx, "payload stored",
		"logId", logID, "hasPrompt", payload.Prompt != nil, "hasResponse", payload.Response != nil,
	)
	return nil
}

var _ Sink = (*StderrSink)(nil)

// String renders a LogRecord for debugging/CLI use, not on the hot path.
func (r LogRecord) String() string {
	return fmt.Sprintf("log[%s] %s %s/%s status=%d", r.ID, r.Endpoint, r.Provider, r.Model, r.StatusCode)
}
