// Package connector is the provider connector (C3): a thin HTTPS
// dispatcher that never buffers a streaming response body.
//
// Adapted from the teacher's pkg/internal/http.Client: same shared
// DefaultHTTPClient with tuned idle-connection pooling. Unlike the
// teacher, there is a single Send operation that returns the status,
// headers and unread body for every response, streaming or not, and
// does not turn a non-2xx status into an error, since the pipeline
// must see status/headers/body verbatim for upstream error
// pass-through. Query parameters are encoded with net/url.Values (the
// teacher's hand-built "k=v&k=v" string omits escaping, which would
// let a query value containing "&" or "=" corrupt the request line).
package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chenpu17/cc-gateway/internal/gwerrors"
)

// DefaultHTTPClient mirrors the teacher's pooled transport.
var DefaultHTTPClient = &http.Client{
	Timeout: 120 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// AuthMode selects how the API key is attached to the outbound request.
type AuthMode string

const (
	AuthAPIKey    AuthMode = "apiKey"
	AuthAuthToken AuthMode = "authToken"
	AuthXAuthToken AuthMode = "xAuthToken"
)

// ProviderType distinguishes the upstream wire shape for auth-header
// purposes (Anthropic vs OpenAI-shaped).
type ProviderType string

const (
	TypeAnthropic ProviderType = "anthropic"
	TypeOpenAI    ProviderType = "openai"
	TypeDeepSeek  ProviderType = "deepseek"
	TypeKimi      ProviderType = "kimi"
	TypeCustom    ProviderType = "custom"
)

// Target describes where and how to reach one upstream provider.
type Target struct {
	BaseURL  string
	APIKey   string
	AuthMode AuthMode
	Type     ProviderType
}

// Connector dispatches requests to upstream providers.
type Connector struct {
	client *http.Client
}

func New(client *http.Client) *Connector {
	if client == nil {
		client = DefaultHTTPClient
	}
	return &Connector{client: client}
}

// SendRequest is the single C3 operation's input.
type SendRequest struct {
	Target  Target
	Path    string // e.g. "v1/messages", "v1/chat/completions"
	Body    []byte
	Stream  bool
	Query   map[string]string
	Headers map[string]string // forwarded, sanitized headers (never overrides auth)
}

// SendResult is the single C3 operation's output: the connector never
// reads Body fully for streaming responses — the caller owns it.
type SendResult struct {
	Status  int
	Headers http.Header
	Body    io.ReadCloser
}

func joinURL(base, path string) (string, error) {
	b := strings.TrimRight(base, "/")
	p := strings.TrimLeft(path, "/")
	return b + "/" + p, nil
}

func applyAuth(req *http.Request, t Target) {
	switch t.Type {
	case TypeAnthropic:
		switch t.AuthMode {
		case AuthAuthToken:
			req.Header.Set("Authorization", "Bearer "+t.APIKey)
		case AuthXAuthToken:
			req.Header.Set("x-auth-token", t.APIKey)
		default:
			req.Header.Set("x-api-key", t.APIKey)
		}
	default: // openai-shaped providers: openai, deepseek, kimi, custom
		if t.AuthMode == AuthXAuthToken {
			req.Header.Set("X-Auth-Token", t.APIKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+t.APIKey)
		}
	}
}

// Send performs the HTTP dispatch and returns the raw response for the
// caller to consume (streaming or fully). It never buffers the body.
func (c *Connector) Send(ctx context.Context, r SendRequest) (*SendResult, error) {
	full, err := joinURL(r.Target.BaseURL, r.Path)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeInternalError, "invalid upstream URL", err)
	}

	if len(r.Query) > 0 {
		u, perr := url.Parse(full)
		if perr != nil {
			return nil, gwerrors.Wrap(gwerrors.CodeInternalError, "invalid upstream URL", perr)
		}
		q := u.Query()
		for k, v := range r.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		full = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, full, bytes.NewReader(r.Body))
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeInternalError, "failed to build upstream request", err)
	}

	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	applyAuth(req, r.Target)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.CodeUpstreamUnavailable, fmt.Sprintf("upstream %s unreachable", r.Target.BaseURL), err)
	}

	return &SendResult{Status: resp.StatusCode, Headers: resp.Header, Body: resp.Body}, nil
}

// DefaultPath returns the canonical request path for a wire format
// ("anthropic", "openai-responses", anything else as "openai-chat")
// (spec §4.3).
func DefaultPath(protocol string) string {
	switch protocol {
	case "anthropic":
		return "v1/messages"
	case "openai-responses":
		return "v1/responses"
	default: // "openai-chat"
		return "v1/chat/completions"
	}
}
