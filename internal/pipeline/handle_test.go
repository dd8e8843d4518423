package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chenpu17/cc-gateway/internal/config"
	"github.com/chenpu17/cc-gateway/internal/connector"
	"github.com/chenpu17/cc-gateway/internal/logsink"
)

// fakeSink is an in-memory logsink.Sink for tests, avoiding any real
// storage dependency while still letting a test assert the lifecycle
// (record -> tokens -> finalize) ran exactly once.
type fakeSink struct {
	mu      sync.Mutex
	records map[string]*logsink.LogRecord
	final   map[string]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{records: map[string]*logsink.LogRecord{}, final: map[string]bool{}}
}

func (f *fakeSink) RecordLog(ctx context.Context, rec logsink.LogRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "log_1"
	if rec.ID != "" {
		id = rec.ID
	} else {
		id = "log_" + rec.Endpoint + "_" + strings.ReplaceAll(rec.Model, ":", "_")
	}
	r := rec
	f.records[id] = &r
	return id, nil
}

func (f *fakeSink) UpdateLogTokens(ctx context.Context, logID string, input, output, cachedRead, cachedCreate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[logID]; ok {
		r.InputTokens, r.OutputTokens, r.CachedReadTokens, r.CachedCreateTokens = input, output, cachedRead, cachedCreate
	}
	return nil
}

func (f *fakeSink) FinalizeLog(ctx context.Context, logID string, statusCode int, errMsg string, latencyMs int64, ttftMs, tpotMs *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.final[logID] = true
	if r, ok := f.records[logID]; ok {
		r.StatusCode = statusCode
		r.Error = errMsg
	}
	return nil
}

func (f *fakeSink) UpdateMetrics(ctx context.Context, day string, delta logsink.MetricsDelta) error {
	return nil
}

func (f *fakeSink) UpsertLogPayload(ctx context.Context, logID string, payload logsink.PayloadRecord) error {
	return nil
}

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Addr: ":8080"},
		Providers: []config.ProviderConfig{
			{ID: "anthropic", BaseURL: upstreamURL, APIKey: "sk-test", AuthMode: "apiKey", Type: "anthropic", DefaultModel: "claude-3-5-sonnet"},
		},
		Endpoints: map[string]config.EndpointConfig{
			"anthropic": {
				ID: "anthropic", Enabled: true,
				Defaults: config.RouteDefaults{Completion: "anthropic:claude-3-5-sonnet"},
			},
		},
	}
}

func newTestPipeline(t *testing.T, upstream *httptest.Server) (*Pipeline, *fakeSink) {
	t.Helper()
	cfg := testConfig(upstream.URL)
	store := config.NewStore(cfg)
	sink := newFakeSink()
	pl := New(store, connector.New(upstream.Client()), sink, nil)
	return pl, sink
}

func TestHandle_NonStreamingHappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet",
			"content":     []interface{}{map[string]interface{}{"type": "text", "text": "hello"}},
			"stop_reason": "end_turn",
			"usage":       map[string]interface{}{"input_tokens": 5, "output_tokens": 2},
		})
	}))
	defer upstream.Close()

	pl, sink := newTestPipeline(t, upstream)

	body := strings.NewReader(`{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", body)
	rec := httptest.NewRecorder()

	pl.Handle(rec, req, "anthropic", ProtocolAnthropic)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(0), pl.ActiveRequests())

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "message", out["type"])

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.records, 1)
	for id := range sink.records {
		require.True(t, sink.final[id], "the log record must be finalized exactly once")
	}
}

func TestHandle_UpstreamErrorPassesThroughVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer upstream.Close()

	pl, sink := newTestPipeline(t, upstream)

	body := strings.NewReader(`{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", body)
	rec := httptest.NewRecorder()

	pl.Handle(rec, req, "anthropic", ProtocolAnthropic)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), "slow down")
	require.Equal(t, int64(0), pl.ActiveRequests())
	_ = sink
}

func TestHandle_UnknownEndpointReturns404(t *testing.T) {
	cfg := config.DefaultConfig()
	delete(cfg.Endpoints, "anthropic")
	store := config.NewStore(&cfg)
	pl := New(store, connector.New(nil), newFakeSink(), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	pl.Handle(rec, req, "anthropic", ProtocolAnthropic)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandle_MalformedJSONBodyReturns400(t *testing.T) {
	cfg := config.DefaultConfig()
	store := config.NewStore(&cfg)
	pl := New(store, connector.New(nil), newFakeSink(), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	pl.Handle(rec, req, "anthropic", ProtocolAnthropic)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(0), pl.ActiveRequests())
}

func TestHandle_ForbiddenEndpointForAPIKeyReturns403(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must never reach upstream when the key is forbidden")
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.APIKeys = []config.APIKeyConfig{{ID: "k1", Key: "secret", AllowedEndpoints: []string{"openai"}}}
	store := config.NewStore(cfg)
	sink := newFakeSink()
	pl := New(store, connector.New(upstream.Client()), sink, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	pl.Handle(rec, req, "anthropic", ProtocolAnthropic)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
