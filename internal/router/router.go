// Package router resolves a (provider, model) dispatch target from a
// normalized payload plus endpoint routing configuration (spec §4.2,
// C2). The bucket-selection and fallback-chain logic is grounded on
// the teacher's now-retired pkg/registry/registry.go, whose
// parseModelString split a "provider:model" string on the first
// colon; that convention is re-derived here as parseTarget.
package router

import (
	"strings"

	"github.com/chenpu17/cc-gateway/internal/gwerrors"
	"github.com/chenpu17/cc-gateway/internal/ir"
	"github.com/chenpu17/cc-gateway/internal/tokenest"
)

// longContextBucket is the canonical modelRoutes key used for the
// long-context override (spec §4.2 step 2, resolving Open Question #1:
// the source was inconsistent between a synthetic key and a bucket
// label — this gateway always uses the synthetic "__long_context__"
// key so it composes with the same modelRoutes map as every other
// bucket).
const longContextBucket = "__long_context__"

// Defaults is the endpoint's per-bucket fallback provider:model table.
type Defaults struct {
	Completion          string
	Reasoning           string
	Background          string
	LongContext         string
	LongContextThreshold int
}

// Provider describes one configured upstream for fallback resolution
// (step 6 of the algorithm: first provider whose models[] contains the
// client-requested model).
type Provider struct {
	ID           string
	Models       []string
	DefaultModel string
}

// Config is the routing configuration for a single endpoint
// (anthropic | openai | custom:<id>), spec §3 "Endpoint routing".
type Config struct {
	Defaults    Defaults
	ModelRoutes map[string]string // clientModel|bucketKey -> "provider:model"
	Providers   []Provider
}

// Target is the resolved dispatch target returned to the pipeline.
type Target struct {
	ProviderID   string
	ModelID      string
	BucketKey    string
	TokenEstimate int
}

// Resolve implements the C2 algorithm (spec §4.2).
func Resolve(cfg Config, payload *ir.Payload, clientRequestedModel string) (Target, error) {
	tIn := tokenest.EstimatePayload(payload)

	bucket := pickBucket(cfg, payload, clientRequestedModel, tIn)

	if route, ok := nonEmpty(cfg.ModelRoutes, clientRequestedModel); ok {
		return finish(route, bucket, tIn)
	}
	if route, ok := nonEmpty(cfg.ModelRoutes, bucket); ok {
		return finish(route, bucket, tIn)
	}
	if route := defaultForBucket(cfg.Defaults, bucket); route != "" {
		return finish(route, bucket, tIn)
	}
	for _, p := range cfg.Providers {
		if containsModel(p.Models, clientRequestedModel) {
			return finish(p.ID+":"+clientRequestedModel, bucket, tIn)
		}
	}
	for _, p := range cfg.Providers {
		if p.DefaultModel != "" {
			return finish(p.ID+":"+p.DefaultModel, bucket, tIn)
		}
	}

	return Target{}, gwerrors.New(gwerrors.CodeRouteNotFound, "no provider route matched request")
}

func pickBucket(cfg Config, payload *ir.Payload, clientRequestedModel string, tIn int) string {
	bucket := "completion"
	if payload.Thinking && cfg.Defaults.Reasoning != "" {
		bucket = "reasoning"
	} else if strings.Contains(strings.ToLower(clientRequestedModel), "haiku") && cfg.Defaults.Background != "" {
		bucket = "background"
	}

	if cfg.Defaults.LongContextThreshold > 0 && tIn >= cfg.Defaults.LongContextThreshold {
		if _, ok := nonEmpty(cfg.ModelRoutes, longContextBucket); ok || cfg.Defaults.LongContext != "" {
			// Tie-break order: reasoning > background > long-context > completion.
			if bucket == "completion" {
				bucket = longContextBucket
			}
		}
	}
	return bucket
}

func nonEmpty(m map[string]string, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	return v, ok && v != ""
}

func defaultForBucket(d Defaults, bucket string) string {
	switch bucket {
	case "reasoning":
		return d.Reasoning
	case "background":
		return d.Background
	case longContextBucket:
		return d.LongContext
	default:
		return d.Completion
	}
}

func containsModel(models []string, model string) bool {
	if model == "" {
		return false
	}
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

// parseTarget splits "providerId:modelId" on the first colon,
// mirroring the teacher's retired parseModelString.
func parseTarget(route string) (providerID, modelID string) {
	idx := strings.IndexByte(route, ':')
	if idx < 0 {
		return route, ""
	}
	return route[:idx], route[idx+1:]
}

func finish(route, bucket string, tIn int) (Target, error) {
	providerID, modelID := parseTarget(route)
	if providerID == "" {
		return Target{}, gwerrors.New(gwerrors.CodeRouteNotFound, "route missing provider id")
	}
	return Target{ProviderID: providerID, ModelID: modelID, BucketKey: bucket, TokenEstimate: tIn}, nil
}

// ResolveDefaultModel fills in a provider's defaultModel when the
// parsed target carries no model part (spec §4.2 step 7).
func ResolveDefaultModel(t Target, providers []Provider) Target {
	if t.ModelID != "" {
		return t
	}
	for _, p := range providers {
		if p.ID == t.ProviderID && p.DefaultModel != "" {
			t.ModelID = p.DefaultModel
			return t
		}
	}
	return t
}
