// Package config holds the gateway's declarative configuration: the
// provider list and per-endpoint routing tables described in spec §3
// ("Provider config", "Endpoint routing"), plus the process-wide
// snapshot/watch machinery spec §9 requires in place of in-place
// config mutation.
//
// Structurally this mirrors minhnhatt71-crystaldolphin's
// internal/config tree: one ProviderConfig-shaped struct per upstream,
// collected into a keyed list, loaded with a DefaultConfig
// fallback-on-error and saved as an indented, trailing-newline file at
// 0o600. That tree uses JSON; this one uses YAML (gopkg.in/yaml.v3),
// already a dependency of this module and the more common front-door
// format for gateway-style config in the wider retrieval pack.
package config

// ProviderConfig is one configured upstream (spec §3 "Provider
// config"). Unlike crystaldolphin's fixed one-field-per-provider
// struct, providers here are an arbitrary keyed list: this gateway
// has no closed set of known upstreams.
type ProviderConfig struct {
	ID           string   `yaml:"id"`
	Label        string   `yaml:"label"`
	BaseURL      string   `yaml:"baseUrl"`
	APIKey       string   `yaml:"apiKey"`
	AuthMode     string   `yaml:"authMode"` // apiKey | authToken | xAuthToken
	DefaultModel string   `yaml:"defaultModel"`
	Models       []string `yaml:"models"`
	Type         string   `yaml:"type"` // openai | anthropic | deepseek | kimi | custom
}

// RouteDefaults is the per-endpoint bucket fallback table (spec §3
// "Endpoint routing" / §4.2).
type RouteDefaults struct {
	Completion           string `yaml:"completion"`
	Reasoning            string `yaml:"reasoning"`
	Background           string `yaml:"background"`
	LongContext          string `yaml:"longContext"`
	LongContextThreshold int    `yaml:"longContextThreshold"`
}

// ValidationConfig configures the C5 gate for one endpoint (spec §4.5).
type ValidationConfig struct {
	Mode                    string `yaml:"mode"` // off | claude-code | anthropic-strict
	AllowExperimentalBlocks bool   `yaml:"allowExperimentalBlocks"`
}

// EndpointPath is one path-protocol declaration for a custom endpoint
// (spec §4.7 descriptor field `paths`).
type EndpointPath struct {
	Path     string `yaml:"path"`
	Protocol string `yaml:"protocol"` // anthropic | openai-chat | openai-responses | openai-auto
}

// EndpointConfig is one client-facing surface: the two builtin
// endpoints ("anthropic", "openai") plus any number of custom ones
// (spec §3 "Endpoint routing", §4.7 "Custom endpoints").
type EndpointConfig struct {
	ID          string            `yaml:"id"`
	Label       string            `yaml:"label"`
	Enabled     bool              `yaml:"enabled"`
	Paths       []EndpointPath    `yaml:"paths"`
	Defaults    RouteDefaults     `yaml:"defaults"`
	ModelRoutes map[string]string `yaml:"modelRoutes"`
	Validation  ValidationConfig  `yaml:"validation"`
}

// APIKeyConfig describes one accepted client API key (spec §4.6 step 3
// "key context {id?, name?, providedKey?, allowedEndpoints?}").
type APIKeyConfig struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Key              string   `yaml:"key"`
	AllowedEndpoints []string `yaml:"allowedEndpoints"` // empty = all endpoints allowed
}

// RateLimitConfig configures the optional per-API-key limiter (§12
// supplemented feature), off by default.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// ServerConfig holds process-level settings that are not per-endpoint.
type ServerConfig struct {
	Addr                  string `yaml:"addr"`
	StrictAPIKey          bool   `yaml:"strictApiKey"` // missing key -> 401 instead of anonymous
	StoreRequestPayloads  bool   `yaml:"storeRequestPayloads"`
	StoreResponsePayloads bool   `yaml:"storeResponsePayloads"`
}

// Config is one immutable configuration snapshot (spec §9: "replace
// with immutable config snapshots").
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Providers []ProviderConfig          `yaml:"providers"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
	APIKeys   []APIKeyConfig            `yaml:"apiKeys"`
	RateLimit RateLimitConfig           `yaml:"rateLimit"`
}

// DefaultConfig is the fallback snapshot used when no config file
// exists yet or the file on disk fails to parse, mirroring
// crystaldolphin's Load-never-errors-out behaviour.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Endpoints: map[string]EndpointConfig{
			"anthropic": {ID: "anthropic", Label: "Anthropic Messages", Enabled: true},
			"openai":    {ID: "openai", Label: "OpenAI Chat/Responses", Enabled: true},
		},
	}
}

// ProviderByID looks up one provider by its configured id.
func (c *Config) ProviderByID(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// EndpointByID looks up one endpoint's live descriptor, including
// endpoints not present in the map (absent == disabled), matching
// spec §4.7's "cross-checked against the endpoint's current (live)
// descriptor" requirement.
func (c *Config) EndpointByID(id string) (EndpointConfig, bool) {
	e, ok := c.Endpoints[id]
	return e, ok && e.Enabled
}

// KeyByValue resolves the API key a client presented to its
// configured context, or reports ok=false for an unrecognised key
// (spec §4.6 step 3).
func (c *Config) KeyByValue(provided string) (APIKeyConfig, bool) {
	for _, k := range c.APIKeys {
		if k.Key == provided {
			return k, true
		}
	}
	return APIKeyConfig{}, false
}

// Allows reports whether key may call endpointID; an empty
// AllowedEndpoints list means "all endpoints".
func (k APIKeyConfig) Allows(endpointID string) bool {
	if len(k.AllowedEndpoints) == 0 {
		return true
	}
	for _, e := range k.AllowedEndpoints {
		if e == endpointID {
			return true
		}
	}
	return false
}
