// Package logsink is the request-log / metrics collaborator the
// pipeline (C6) calls at its log-lifecycle boundaries (spec §4.6 steps
// 6/7/10/11/12, §6 "Persisted observability records"). It is grounded
// on the teacher's examples/middleware/logging: the same
// Logger{Log, Flush}-shaped interface, generalised here into the five
// named operations (recordLog/updateLogTokens/finalizeLog/
// updateMetrics/upsertLogPayload) the pipeline actually needs, with a
// stderr-backed default implementation replacing the teacher's
// ConsoleLogger/JSONLogger pair.
package logsink

import (
	"context"
	"time"
)

// LogRecord is the request-scoped observability record opened before
// upstream dispatch and finalized exactly once per request (spec §6).
type LogRecord struct {
	ID          string
	Ts          time.Time
	Endpoint    string
	Provider    string
	Model       string
	ClientModel string
	Stream      bool

	APIKeyID    string
	APIKeyName  string
	APIKeyValue string // obfuscated, never the raw key

	LatencyMs  int64
	StatusCode int
	Error      string

	InputTokens        int
	OutputTokens       int
	CachedReadTokens   int
	CachedCreateTokens int

	TTFTMs *int64
	TPOTMs *int64
}

// PayloadRecord is the optional {prompt, response} blob persisted
// alongside a log record when storeRequestPayloads/
// storeResponsePayloads is enabled.
type PayloadRecord struct {
	Prompt   interface{}
	Response interface{}
}

// MetricsDelta is one day's incremental counters (spec §4.6 step 10:
// "update per-day metrics {requests+1, input, output, cached,
// cacheRead, cacheCreation, latency}").
type MetricsDelta struct {
	Requests      int
	InputTokens   int
	OutputTokens  int
	CachedRead    int
	CachedCreate  int
	LatencyMs     int64
}

// Sink is the storage collaborator's contract. Every method is
// fire-and-forget from the hot path except RecordLog, which must
// return a logID before dispatch (spec §5 "Shared resources"); a
// Sink's own failures must never fail the request (spec §7 "Policy:
// Storage-sink failures are recovered locally").
type Sink interface {
	RecordLog(ctx context.Context, rec LogRecord) (logID string, err error)
	UpdateLogTokens(ctx context.Context, logID string, input, output, cachedRead, cachedCreate int) error
	FinalizeLog(ctx context.Context, logID string, statusCode int, errMsg string, latencyMs int64, ttftMs, tpotMs *int64) error
	UpdateMetrics(ctx context.Context, day string, delta MetricsDelta) error
	UpsertLogPayload(ctx context.Context, logID string, payload PayloadRecord) error
}

// obfuscateKey redacts a client-provided API key to a short fingerprint
// safe to persist in a log record (spec §4.6 step 6:
// "apiKeyValue=encrypt(providedKey)"). No reversible-encryption
// library is genuinely used anywhere in the retrieval pack to ground a
// real encrypt/decrypt round trip, so this keeps the value one-way:
// enough to eyeball-match two log lines from the same key, never
// enough to recover the key. See DESIGN.md.
func obfuscateKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}

// ObfuscateKey exposes obfuscateKey to callers building a LogRecord
// outside this package (the pipeline never handles raw keys longer
// than it must).
func ObfuscateKey(key string) string { return obfuscateKey(key) }
