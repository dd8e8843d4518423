package config

import (
	"testing"

	"github.com/chenpu17/cc-gateway/internal/connector"
	"github.com/stretchr/testify/require"
)

func TestRouterConfig_UnknownEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	_, ok := cfg.RouterConfig("does-not-exist")
	require.False(t, ok)
}

func TestRouterConfig_ProjectsProvidersAndDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers = []ProviderConfig{{ID: "p1", Models: []string{"m1"}, DefaultModel: "m1"}}
	ep := cfg.Endpoints["anthropic"]
	ep.Defaults.Completion = "p1:m1"
	cfg.Endpoints["anthropic"] = ep

	rc, ok := cfg.RouterConfig("anthropic")
	require.True(t, ok)
	require.Equal(t, "p1:m1", rc.Defaults.Completion)
	require.Len(t, rc.Providers, 1)
	require.Equal(t, "p1", rc.Providers[0].ID)
}

func TestConnectorTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers = []ProviderConfig{{
		ID: "p1", BaseURL: "https://api.example.com", APIKey: "sk-1",
		AuthMode: "authToken", Type: "anthropic",
	}}

	target, ok := cfg.ConnectorTarget("p1")
	require.True(t, ok)
	require.Equal(t, "https://api.example.com", target.BaseURL)
	require.Equal(t, connector.AuthAuthToken, target.AuthMode)
	require.Equal(t, connector.TypeAnthropic, target.Type)

	_, ok = cfg.ConnectorTarget("missing")
	require.False(t, ok)
}
