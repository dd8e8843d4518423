// handle.go implements the C6 orchestrator's single entry point: one
// call per inbound client request, covering every step of spec §4.6
// (parse, auth, validate, normalize, route, log, dispatch, relay,
// finalize) on every exit path, including a panic.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/chenpu17/cc-gateway/internal/config"
	"github.com/chenpu17/cc-gateway/internal/connector"
	"github.com/chenpu17/cc-gateway/internal/gwerrors"
	"github.com/chenpu17/cc-gateway/internal/ir"
	"github.com/chenpu17/cc-gateway/internal/logsink"
	"github.com/chenpu17/cc-gateway/internal/router"
	"github.com/chenpu17/cc-gateway/internal/streamxform"
	"github.com/chenpu17/cc-gateway/internal/telemetry"
	"github.com/chenpu17/cc-gateway/internal/tokenest"
	"github.com/chenpu17/cc-gateway/internal/validator"
)

// errorTypeForCode renders the Anthropic-style top-level `error.type`
// string for a surfaced gwerrors.Code, following spec §6's one named
// example (430 -> "invalid_request_error") generalised to the rest of
// the taxonomy.
func errorTypeForCode(code gwerrors.Code) string {
	switch code {
	case gwerrors.CodeInvalidAPIKey:
		return "authentication_error"
	case gwerrors.CodeForbidden:
		return "permission_error"
	case gwerrors.CodeUpstreamUnavailable, gwerrors.CodeUpstreamError, gwerrors.CodeInternalError:
		return "api_error"
	default:
		return "invalid_request_error"
	}
}

func writeGatewayError(w http.ResponseWriter, ge *gwerrors.GatewayError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ge.Status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"type":    errorTypeForCode(ge.Code),
			"code":    string(ge.Code),
			"message": ge.Message,
		},
	})
}

// Handle is the single per-request orchestrator (C6). endpointID is
// the resolved endpoint ("anthropic", "openai", or "custom:<id>");
// protocol is the wire shape this particular path expects to receive
// (for "openai-auto" custom endpoints, the caller has already resolved
// it to openai-chat/openai-responses by URL suffix, per spec §4.7).
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request, endpointID string, protocol Protocol) {
	state := newRequestState(endpointID, protocol)
	p.enter()
	defer p.exit()

	tracer := p.Telemetry.Tracer()
	ctx, rootSpan := tracer.Start(r.Context(), "gateway.request")
	defer rootSpan.End()
	r = r.WithContext(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			p.finalizeOnce(r.Context(), state, http.StatusInternalServerError, "internal_error: "+panicMessage(rec), nil, nil)
			// If headers were already written (mid-stream), the
			// connection simply drops here; nothing else to send.
		}
	}()

	cfg := p.Store.Load()

	ep, ok := cfg.EndpointByID(endpointID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeGatewayError(w, gwerrors.Wrap(gwerrors.CodeInvalidRequest, "failed to read request body", err))
		return
	}
	var body map[string]interface{}
	if len(bytes.TrimSpace(rawBody)) > 0 {
		if err := json.Unmarshal(rawBody, &body); err != nil {
			writeGatewayError(w, gwerrors.Wrap(gwerrors.CodeInvalidRequest, "malformed JSON body", err))
			return
		}
	}
	if body == nil {
		writeGatewayError(w, gwerrors.New(gwerrors.CodeInvalidRequest, "request body must be a JSON object"))
		return
	}

	headers := forwardableHeaders(r)

	keyCtx, status, ok := resolveAPIKey(cfg, r)
	if !ok {
		p.rejectEarly(r.Context(), state, cfg, status, "invalid_api_key", gwerrors.New(gwerrors.CodeInvalidAPIKey, "missing or unrecognised API key"), w)
		return
	}
	if !keyCtx.allows(endpointID) {
		p.rejectEarly(r.Context(), state, cfg, http.StatusForbidden, "forbidden", gwerrors.New(gwerrors.CodeForbidden, "API key is not allowed to call this endpoint"), w)
		return
	}

	if protocol == ProtocolAnthropic {
		vreq := validator.Request{
			Method:      r.Method,
			Query:       r.URL.Query(),
			ContentType: r.Header.Get("Content-Type"),
			Headers:     r.Header,
			Body:        body,
		}
		if ve := validator.Validate(validator.Options{
			Mode:                    validator.Mode(ep.Validation.Mode),
			AllowExperimentalBlocks: ep.Validation.AllowExperimentalBlocks,
		}, vreq); ve != nil {
			p.rejectEarly(r.Context(), state, cfg, 430, "claude_validation", ve.ToGatewayError(), w)
			return
		}
	}

	payload, _ := telemetry.RecordSpan(r.Context(), tracer, telemetry.SpanOptions{Name: "gateway.normalize"},
		func(ctx context.Context, span trace.Span) (*ir.Payload, error) {
			return normalize(protocol, body), nil
		})

	routerCfg, ok := cfg.RouterConfig(endpointID)
	if !ok {
		p.rejectEarly(r.Context(), state, cfg, http.StatusBadRequest, "route_not_found", gwerrors.New(gwerrors.CodeRouteNotFound, "endpoint has no routing configuration"), w)
		return
	}
	target, err := telemetry.RecordSpan(r.Context(), tracer, telemetry.SpanOptions{Name: "gateway.route"},
		func(ctx context.Context, span trace.Span) (router.Target, error) {
			return router.Resolve(routerCfg, payload, payload.Model)
		})
	if err != nil {
		ge, _ := gwerrors.As(err)
		if ge == nil {
			ge = gwerrors.Wrap(gwerrors.CodeRouteNotFound, "routing failed", err)
		}
		p.rejectEarly(r.Context(), state, cfg, ge.Status, "route_not_found", ge, w)
		return
	}
	target = router.ResolveDefaultModel(target, routerCfg.Providers)

	providerCfg, ok := cfg.ProviderByID(target.ProviderID)
	if !ok {
		p.rejectEarly(r.Context(), state, cfg, http.StatusBadRequest, "route_not_found", gwerrors.New(gwerrors.CodeRouteNotFound, "resolved provider is not configured"), w)
		return
	}
	rootSpan.SetAttributes(telemetry.RequestAttributes(displayEndpointName(endpointID), target.ProviderID, target.ModelID)...)

	logID, _ := p.Sink.RecordLog(r.Context(), logsink.LogRecord{
		Ts:          state.start,
		Endpoint:    displayEndpointName(endpointID),
		Provider:    target.ProviderID,
		Model:       target.ModelID,
		ClientModel: payload.Model,
		Stream:      payload.Stream,
		APIKeyID:    keyCtx.ID,
		APIKeyName:  keyCtx.Name,
		APIKeyValue: logsink.ObfuscateKey(keyCtx.ProvidedKey),
	})
	state.logID = logID

	if cfg.Server.StoreRequestPayloads {
		go func() {
			_ = p.Sink.UpsertLogPayload(context.Background(), logID, logsink.PayloadRecord{Prompt: body})
		}()
	}

	providerBody := buildProviderBody(payload, providerCfg, target.ModelID)
	bodyBytes, err := json.Marshal(providerBody)
	if err != nil {
		p.finalizeOnce(r.Context(), state, http.StatusInternalServerError, "failed to encode upstream request: "+err.Error(), nil, nil)
		writeGatewayError(w, gwerrors.Wrap(gwerrors.CodeInternalError, "failed to encode upstream request", err))
		return
	}

	connTarget, ok := cfg.ConnectorTarget(target.ProviderID)
	if !ok {
		p.finalizeOnce(r.Context(), state, http.StatusBadRequest, "route_not_found", nil, nil)
		writeGatewayError(w, gwerrors.New(gwerrors.CodeRouteNotFound, "resolved provider is not configured"))
		return
	}
	family := upstreamFamily(providerCfg.Type)

	result, err := telemetry.RecordSpan(r.Context(), tracer, telemetry.SpanOptions{
		Name:       "gateway.dispatch",
		Attributes: telemetry.RequestAttributes(displayEndpointName(endpointID), target.ProviderID, target.ModelID),
	}, func(ctx context.Context, span trace.Span) (*connector.SendResult, error) {
		return p.Connector.Send(ctx, connectorSendRequest(connTarget, family, bodyBytes, payload.Stream, headers))
	})
	if err != nil {
		ge, ok := gwerrors.As(err)
		if !ok {
			ge = gwerrors.Wrap(gwerrors.CodeUpstreamUnavailable, "upstream dispatch failed", err)
		}
		p.finalizeOnce(r.Context(), state, ge.Status, ge.Error(), nil, nil)
		_ = p.Sink.UpdateMetrics(context.Background(), dayBucket(state.start), logsink.MetricsDelta{Requests: 1, LatencyMs: state.elapsedMs()})
		writeGatewayError(w, ge)
		return
	}
	defer result.Body.Close()

	if result.Status >= 400 {
		p.handleUpstreamError(w, r, state, cfg, result)
		return
	}

	spanAttrs := telemetry.RequestAttributes(displayEndpointName(endpointID), target.ProviderID, target.ModelID)
	if !payload.Stream {
		_, _ = telemetry.RecordSpan(r.Context(), tracer, telemetry.SpanOptions{Name: "gateway.response", Attributes: spanAttrs},
			func(ctx context.Context, span trace.Span) (struct{}, error) {
				p.handleNonStreaming(w, r, state, cfg, family, protocol, target, result)
				return struct{}{}, nil
			})
		return
	}
	_, _ = telemetry.RecordSpan(r.Context(), tracer, telemetry.SpanOptions{Name: "gateway.stream", Attributes: spanAttrs},
		func(ctx context.Context, span trace.Span) (struct{}, error) {
			p.handleStreaming(w, r, state, cfg, family, protocol, target, result)
			return struct{}{}, nil
		})
}

func panicMessage(rec interface{}) string {
	if err, ok := rec.(error); ok {
		return err.Error()
	}
	return toString(rec)
}

func toString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "unknown panic"
	}
	return string(b)
}

// normalize dispatches to the C1 normalizer matching the inbound wire
// protocol (spec §4.1 three entry points).
func normalize(protocol Protocol, body map[string]interface{}) *ir.Payload {
	switch protocol {
	case ProtocolOpenAIChat:
		return ir.NormalizeOpenAIChat(body)
	case ProtocolOpenAIResponses:
		return ir.NormalizeOpenAIResponses(body)
	default:
		return ir.NormalizeClaude(body)
	}
}

// rejectEarly records a short-lived log entry and finalizes it
// immediately, satisfying spec §4.6's "event sink entry" requirement
// for an auth/validation/routing rejection that never reaches
// upstream dispatch (spec §4.5 "also emit an event sink entry", §6
// "Forbidden endpoint -> 403 ... and event sink entry").
func (p *Pipeline) rejectEarly(ctx context.Context, state *requestState, cfg *config.Config, status int, errCode string, ge *gwerrors.GatewayError, w http.ResponseWriter) {
	logID, _ := p.Sink.RecordLog(ctx, logsink.LogRecord{
		Ts:       state.start,
		Endpoint: displayEndpointName(state.endpointID),
		Stream:   false,
	})
	state.logID = logID
	p.finalizeOnce(ctx, state, status, errCode+": "+ge.Message, nil, nil)
	writeGatewayError(w, ge)
}

func (p *Pipeline) finalizeOnce(ctx context.Context, state *requestState, statusCode int, errMsg string, ttftMs, tpotMs *int64) {
	if !state.finalized.CompareAndSwap(false, true) {
		return
	}
	if state.logID == "" {
		return
	}
	_ = p.Sink.FinalizeLog(ctx, state.logID, statusCode, errMsg, state.elapsedMs(), ttftMs, tpotMs)
}

func dayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// displayEndpointName renders the config's raw endpoint map key in
// the external vocabulary spec §3/§6 use for the persisted Endpoint
// field ("anthropic | openai | custom:<id>"). Config lookups
// (EndpointByID, RouterConfig, ProviderByID) all key directly off the
// raw id with no prefix — only the observability record needs the
// "custom:" spelling.
func displayEndpointName(endpointID string) string {
	if endpointID == "anthropic" || endpointID == "openai" {
		return endpointID
	}
	return "custom:" + endpointID
}

// connectorSendRequest builds the C3 input for one upstream dispatch;
// kept free-standing (rather than a Pipeline method) since it needs no
// pipeline state beyond its arguments.
func connectorSendRequest(target connector.Target, family Protocol, body []byte, stream bool, headers map[string]string) connector.SendRequest {
	return connector.SendRequest{
		Target:  target,
		Path:    defaultPathFor(family),
		Body:    body,
		Stream:  stream,
		Headers: headers,
	}
}

func defaultPathFor(family Protocol) string {
	if family == ProtocolAnthropic {
		return "v1/messages"
	}
	return "v1/chat/completions"
}

// handleUpstreamError implements spec §4.6 step 9: an upstream
// non-2xx is passed through verbatim, never retried or reinterpreted.
func (p *Pipeline) handleUpstreamError(w http.ResponseWriter, r *http.Request, state *requestState, cfg *config.Config, result *connector.SendResult) {
	respBody, _ := io.ReadAll(result.Body)
	for k, v := range result.Headers {
		if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "Transfer-Encoding") || strings.EqualFold(k, "Connection") {
			continue
		}
		for _, vv := range v {
			w.Header().Add(k, vv)
		}
	}
	w.WriteHeader(result.Status)
	_, _ = w.Write(respBody)

	p.finalizeOnce(r.Context(), state, result.Status, string(respBody), nil, nil)
	_ = p.Sink.UpdateLogTokens(context.Background(), state.logID, 0, 0, 0, 0)
	_ = p.Sink.UpdateMetrics(context.Background(), dayBucket(state.start), logsink.MetricsDelta{Requests: 1, LatencyMs: state.elapsedMs()})
}

// handleNonStreaming implements spec §4.6 step 10.
func (p *Pipeline) handleNonStreaming(w http.ResponseWriter, r *http.Request, state *requestState, cfg *config.Config, family, clientProtocol Protocol, target router.Target, result *connector.SendResult) {
	raw, err := io.ReadAll(result.Body)
	if err != nil {
		p.finalizeOnce(r.Context(), state, http.StatusBadGateway, "failed to read upstream body: "+err.Error(), nil, nil)
		writeGatewayError(w, gwerrors.Wrap(gwerrors.CodeUpstreamError, "failed to read upstream response", err))
		return
	}
	var upstreamBody map[string]interface{}
	_ = json.Unmarshal(raw, &upstreamBody)

	usage := extractUsage(family, upstreamBody)
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.OutputTokens = int64(tokenest.EstimateText(responseTextFor(family, upstreamBody)))
	}

	_ = p.Sink.UpdateLogTokens(r.Context(), state.logID, int(usage.InputTokens), int(usage.OutputTokens), int(usage.CacheReadTokens), int(usage.CacheWriteTokens))
	_ = p.Sink.UpdateMetrics(context.Background(), dayBucket(state.start), logsink.MetricsDelta{
		Requests: 1, InputTokens: int(usage.InputTokens), OutputTokens: int(usage.OutputTokens),
		CachedRead: int(usage.CacheReadTokens), CachedCreate: int(usage.CacheWriteTokens), LatencyMs: state.elapsedMs(),
	})

	converted := convertNonStreamingResponse(family, clientProtocol, upstreamBody, target.ModelID)

	if cfg.Server.StoreResponsePayloads {
		go func() {
			_ = p.Sink.UpsertLogPayload(context.Background(), state.logID, logsink.PayloadRecord{Response: converted})
		}()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(converted)

	p.finalizeOnce(r.Context(), state, http.StatusOK, "", nil, nil)
}

// handleStreaming implements spec §4.6 step 11.
func (p *Pipeline) handleStreaming(w http.ResponseWriter, r *http.Request, state *requestState, cfg *config.Config, family, clientProtocol Protocol, target router.Target, result *connector.SendResult) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	xform := streamxform.NewState(streamFormatFor(family), streamFormatFor(clientProtocol))
	xform.Model = target.ModelID
	start := time.Now()
	xform.Start(start)

	var captured strings.Builder
	storeResponses := cfg.Server.StoreResponsePayloads

	buf := make([]byte, 32*1024)
	for {
		if r.Context().Err() != nil {
			break // client disconnected: stop reading upstream, per spec §5 cancellation
		}
		n, readErr := result.Body.Read(buf)
		if n > 0 {
			frames, ferr := xform.Feed(buf[:n], time.Now())
			for _, f := range frames {
				if storeResponses {
					captured.WriteString(f)
				}
				_, _ = io.WriteString(w, f)
			}
			if flusher != nil {
				flusher.Flush()
			}
			if ferr != nil {
				break
			}
		}
		if readErr != nil {
			break
		}
	}

	frames, _ := xform.Close(time.Now())
	for _, f := range frames {
		if storeResponses {
			captured.WriteString(f)
		}
		_, _ = io.WriteString(w, f)
	}
	if flusher != nil {
		flusher.Flush()
	}

	usage := xform.FinalUsage()
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.OutputTokens = int64(tokenest.EstimateText(captured.String()))
	}

	var ttftMs, tpotMs *int64
	if ttft := xform.TTFT(); ttft > 0 {
		v := ttft.Milliseconds()
		ttftMs = &v
	}
	if usage.OutputTokens > 0 {
		latency := time.Since(start)
		tpot := int64(0)
		if ttftMs != nil {
			tpot = (latency.Milliseconds() - *ttftMs) / usage.OutputTokens
		}
		tpotMs = &tpot
	}

	_ = p.Sink.UpdateLogTokens(r.Context(), state.logID, int(usage.InputTokens), int(usage.OutputTokens), int(usage.CacheReadTokens), int(usage.CacheWriteTokens))
	_ = p.Sink.UpdateMetrics(context.Background(), dayBucket(state.start), logsink.MetricsDelta{
		Requests: 1, InputTokens: int(usage.InputTokens), OutputTokens: int(usage.OutputTokens),
		CachedRead: int(usage.CacheReadTokens), CachedCreate: int(usage.CacheWriteTokens), LatencyMs: state.elapsedMs(),
	})

	if storeResponses {
		summary := map[string]interface{}{
			"content":     captured.String(),
			"usage":       usage,
			"stop_reason": xform.StopReason,
			"model":       target.ModelID,
		}
		go func() {
			_ = p.Sink.UpsertLogPayload(context.Background(), state.logID, logsink.PayloadRecord{Response: summary})
		}()
	}

	p.finalizeOnce(r.Context(), state, http.StatusOK, "", ttftMs, tpotMs)
}
