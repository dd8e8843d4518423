package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chenpu17/cc-gateway/internal/ir"
)

func TestResolve_ClientModelOverrideWins(t *testing.T) {
	cfg := Config{
		Defaults:    Defaults{Completion: "anthropic:claude-3-5-sonnet"},
		ModelRoutes: map[string]string{"gpt-4o": "openai:gpt-4o-2024-08-06"},
	}
	payload := &ir.Payload{Model: "gpt-4o"}

	target, err := Resolve(cfg, payload, "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "openai", target.ProviderID)
	require.Equal(t, "gpt-4o-2024-08-06", target.ModelID)
}

func TestResolve_ReasoningBucketPicksReasoningDefault(t *testing.T) {
	cfg := Config{Defaults: Defaults{Completion: "anthropic:claude-3-5-sonnet", Reasoning: "anthropic:claude-3-opus"}}
	payload := &ir.Payload{Thinking: true}

	target, err := Resolve(cfg, payload, "claude-3-opus")
	require.NoError(t, err)
	require.Equal(t, "reasoning", target.BucketKey)
	require.Equal(t, "claude-3-opus", target.ModelID)
}

func TestResolve_HaikuModelNamePicksBackgroundBucket(t *testing.T) {
	cfg := Config{Defaults: Defaults{Completion: "anthropic:claude-3-5-sonnet", Background: "anthropic:claude-3-haiku"}}
	payload := &ir.Payload{}

	target, err := Resolve(cfg, payload, "claude-3-5-Haiku-latest")
	require.NoError(t, err)
	require.Equal(t, "background", target.BucketKey)
}

func TestResolve_LongContextOverridesCompletionOnly(t *testing.T) {
	cfg := Config{
		Defaults: Defaults{
			Completion:           "anthropic:claude-3-5-sonnet",
			LongContext:          "anthropic:claude-3-5-sonnet-200k",
			LongContextThreshold: 10,
		},
	}
	payload := &ir.Payload{Messages: []ir.Message{{Role: ir.RoleUser, Text: "this is a long enough message to exceed the threshold easily"}}}

	target, err := Resolve(cfg, payload, "")
	require.NoError(t, err)
	require.Equal(t, longContextBucket, target.BucketKey)
	require.Equal(t, "claude-3-5-sonnet-200k", target.ModelID)
}

func TestResolve_FallsBackToProviderModelScan(t *testing.T) {
	cfg := Config{
		Providers: []Provider{
			{ID: "openai", Models: []string{"gpt-4o"}, DefaultModel: "gpt-4o-mini"},
		},
	}
	payload := &ir.Payload{}

	target, err := Resolve(cfg, payload, "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "openai", target.ProviderID)
	require.Equal(t, "gpt-4o", target.ModelID)
}

func TestResolve_FallsBackToProviderDefaultModel(t *testing.T) {
	cfg := Config{
		Providers: []Provider{{ID: "openai", DefaultModel: "gpt-4o-mini"}},
	}
	payload := &ir.Payload{}

	target, err := Resolve(cfg, payload, "unknown-model")
	require.NoError(t, err)
	require.Equal(t, "openai", target.ProviderID)
	require.Equal(t, "gpt-4o-mini", target.ModelID)
}

func TestResolve_NoMatchReturnsRouteNotFound(t *testing.T) {
	_, err := Resolve(Config{}, &ir.Payload{}, "anything")
	require.Error(t, err)
}

func TestResolveDefaultModel_FillsEmptyModelFromProvider(t *testing.T) {
	target := Target{ProviderID: "openai"}
	providers := []Provider{{ID: "openai", DefaultModel: "gpt-4o-mini"}}

	filled := ResolveDefaultModel(target, providers)
	require.Equal(t, "gpt-4o-mini", filled.ModelID)
}

func TestResolveDefaultModel_LeavesExplicitModelAlone(t *testing.T) {
	target := Target{ProviderID: "openai", ModelID: "gpt-4o"}
	providers := []Provider{{ID: "openai", DefaultModel: "gpt-4o-mini"}}

	filled := ResolveDefaultModel(target, providers)
	require.Equal(t, "gpt-4o", filled.ModelID)
}
