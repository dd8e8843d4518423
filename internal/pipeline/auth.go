package pipeline

import (
	"net/http"
	"strings"

	"github.com/chenpu17/cc-gateway/internal/config"
)

// deniedHeaders is the fixed deny list of spec §4.6 step 2: these are
// transport-hop or auth headers the gateway must never forward
// upstream verbatim (auth is re-derived from the resolved provider,
// not copied from the client).
var deniedHeaders = map[string]bool{
	"host": true, "connection": true, "content-length": true,
	"transfer-encoding": true, "keep-alive": true, "upgrade": true,
	"te": true, "trailer": true, "authorization": true, "x-api-key": true,
	"upgrade-insecure-requests": true,
}

// forwardableHeaders copies every header from r except the deny list
// and any "proxy-*" header, flattening multi-value headers with a
// comma (net/http's canonical join for a repeated header).
func forwardableHeaders(r *http.Request) map[string]string {
	out := map[string]string{}
	for k, v := range r.Header {
		lk := strings.ToLower(k)
		if deniedHeaders[lk] || strings.HasPrefix(lk, "proxy-") {
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// keyContext is the resolved API-key identity for one request (spec
// §4.6 step 3).
type keyContext struct {
	ID               string
	Name             string
	ProvidedKey      string
	AllowedEndpoints []string
	anonymous        bool
}

func (k keyContext) allows(endpointID string) bool {
	if k.anonymous || len(k.AllowedEndpoints) == 0 {
		return true
	}
	for _, e := range k.AllowedEndpoints {
		if e == endpointID {
			return true
		}
	}
	return false
}

// resolveAPIKey extracts the bearer/x-api-key credential and resolves
// it against cfg's configured keys (spec §4.6 step 3). ok=false means
// the request must be rejected by the caller with the returned status.
func resolveAPIKey(cfg *config.Config, r *http.Request) (keyContext, int, bool) {
	provided := bearerToken(r)
	if provided == "" {
		provided = r.Header.Get("x-api-key")
	}

	if len(cfg.APIKeys) == 0 {
		// No key allowlist configured: the gateway runs key-less.
		return keyContext{ProvidedKey: provided, anonymous: true}, 0, true
	}

	if provided == "" {
		if cfg.Server.StrictAPIKey {
			return keyContext{}, http.StatusUnauthorized, false
		}
		return keyContext{anonymous: true}, 0, true
	}

	k, found := cfg.KeyByValue(provided)
	if !found {
		return keyContext{}, http.StatusUnauthorized, false
	}
	return keyContext{ID: k.ID, Name: k.Name, ProvidedKey: provided, AllowedEndpoints: k.AllowedEndpoints}, 0, true
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return ""
}
