package endpoints

import (
	"testing"

	"github.com/chenpu17/cc-gateway/internal/config"
	"github.com/stretchr/testify/require"
)

func cfgWithCustom(paths ...config.EndpointPath) *config.Config {
	return &config.Config{
		Endpoints: map[string]config.EndpointConfig{
			"custom:team1": {ID: "custom:team1", Enabled: true, Paths: paths},
		},
	}
}

func TestResolve_AnthropicPath(t *testing.T) {
	cfg := cfgWithCustom(config.EndpointPath{Path: "team1", Protocol: "anthropic"})

	m, ok := Resolve(cfg, "/team1/v1/messages")
	require.True(t, ok)
	require.Equal(t, "custom:team1", m.EndpointID)
	require.Equal(t, ProtoAnthropic, m.Protocol)

	m, ok = Resolve(cfg, "/team1/v1/v1/messages")
	require.True(t, ok, "legacy double-prefix path must also match")
	require.Equal(t, ProtoAnthropic, m.Protocol)
}

func TestResolve_OpenAIAutoExpandsBothSurfaces(t *testing.T) {
	cfg := cfgWithCustom(config.EndpointPath{Path: "team1", Protocol: "openai-auto"})

	m, ok := Resolve(cfg, "/team1/v1/chat/completions")
	require.True(t, ok)
	require.Equal(t, ProtoOpenAIChat, m.Protocol)

	m, ok = Resolve(cfg, "/team1/v1/responses")
	require.True(t, ok)
	require.Equal(t, ProtoOpenAIResponses, m.Protocol)

	m, ok = Resolve(cfg, "/team1/v1/models")
	require.True(t, ok)
	require.Equal(t, ProtoModels, m.Protocol)
}

func TestResolve_DisabledEndpointNeverMatches(t *testing.T) {
	cfg := cfgWithCustom(config.EndpointPath{Path: "team1", Protocol: "anthropic"})
	ep := cfg.Endpoints["custom:team1"]
	ep.Enabled = false
	cfg.Endpoints["custom:team1"] = ep

	_, ok := Resolve(cfg, "/team1/v1/messages")
	require.False(t, ok, "a disabled endpoint must 404, not match")
}

func TestResolve_DeletedEndpointIsImmediatelyStale(t *testing.T) {
	cfg := cfgWithCustom(config.EndpointPath{Path: "team1", Protocol: "anthropic"})
	delete(cfg.Endpoints, "custom:team1")

	_, ok := Resolve(cfg, "/team1/v1/messages")
	require.False(t, ok, "once deleted from the live snapshot the route must 404 on the next request, not after a restart")
}

func TestResolve_UnknownPathNoMatch(t *testing.T) {
	cfg := cfgWithCustom(config.EndpointPath{Path: "team1", Protocol: "anthropic"})
	_, ok := Resolve(cfg, "/team1/v1/unknown")
	require.False(t, ok)
}

func TestResolveAuto(t *testing.T) {
	require.Equal(t, ProtoOpenAIResponses, ResolveAuto("/x/v1/responses"))
	require.Equal(t, ProtoOpenAIChat, ResolveAuto("/x/v1/chat/completions"))
	require.Equal(t, ProtoModels, ResolveAuto("/x/v1/models"))
}
