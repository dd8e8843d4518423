package endpoints

import (
	"sort"

	"github.com/chenpu17/cc-gateway/internal/config"
)

// ModelEntry is one element of the /v1/models listing (spec §6, and
// §12's supplemented-feature note that this response shape follows
// the teacher's providers/openai/model_ids.go enumeration style).
type ModelEntry struct {
	ID       string             `json:"id"`
	Object   string             `json:"object"`
	Metadata ModelEntryMetadata `json:"metadata"`
}

type ModelEntryMetadata struct {
	Routes    []ModelRoute    `json:"routes"`
	Providers []ModelProvider `json:"providers"`
}

type ModelRoute struct {
	Endpoint string `json:"endpoint"`
	Target   string `json:"target"`
}

type ModelProvider struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	IsDefault bool   `json:"isDefault"`
}

// ModelList is the GET /v1/models response body, merged from every
// endpoint's modelRoutes table and every provider's declared models
// (spec §6: "returns merged model list from routing config and
// provider declarations").
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// BuildModelList assembles the merged listing from the current config
// snapshot.
func BuildModelList(cfg *config.Config) ModelList {
	ids := map[string]struct{}{}
	for _, ep := range cfg.Endpoints {
		for clientModel := range ep.ModelRoutes {
			if clientModel == "__long_context__" {
				continue // synthetic bucket key, not a client-facing model id
			}
			ids[clientModel] = struct{}{}
		}
	}
	for _, p := range cfg.Providers {
		for _, m := range p.Models {
			ids[m] = struct{}{}
		}
		if p.DefaultModel != "" {
			ids[p.DefaultModel] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	data := make([]ModelEntry, 0, len(sorted))
	for _, id := range sorted {
		data = append(data, ModelEntry{
			ID:     id,
			Object: "model",
			Metadata: ModelEntryMetadata{
				Routes:    routesFor(cfg, id),
				Providers: providersFor(cfg, id),
			},
		})
	}
	return ModelList{Object: "list", Data: data}
}

func routesFor(cfg *config.Config, modelID string) []ModelRoute {
	var out []ModelRoute
	epIDs := make([]string, 0, len(cfg.Endpoints))
	for id := range cfg.Endpoints {
		epIDs = append(epIDs, id)
	}
	sort.Strings(epIDs)
	for _, epID := range epIDs {
		if target, ok := cfg.Endpoints[epID].ModelRoutes[modelID]; ok && target != "" {
			out = append(out, ModelRoute{Endpoint: epID, Target: target})
		}
	}
	return out
}

func providersFor(cfg *config.Config, modelID string) []ModelProvider {
	var out []ModelProvider
	for _, p := range cfg.Providers {
		if containsString(p.Models, modelID) || p.DefaultModel == modelID {
			out = append(out, ModelProvider{ID: p.ID, Label: p.Label, IsDefault: p.DefaultModel == modelID})
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
