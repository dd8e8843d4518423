package config

import (
	"github.com/chenpu17/cc-gateway/internal/connector"
	"github.com/chenpu17/cc-gateway/internal/router"
)

// RouterConfig projects one endpoint's routing table plus the global
// provider list into the shape internal/router.Resolve expects (spec
// §4.2 step 6/7 fall through to "the first configured provider").
func (c *Config) RouterConfig(endpointID string) (router.Config, bool) {
	ep, ok := c.Endpoints[endpointID]
	if !ok {
		return router.Config{}, false
	}
	providers := make([]router.Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		providers = append(providers, router.Provider{ID: p.ID, Models: p.Models, DefaultModel: p.DefaultModel})
	}
	return router.Config{
		Defaults: router.Defaults{
			Completion:           ep.Defaults.Completion,
			Reasoning:            ep.Defaults.Reasoning,
			Background:           ep.Defaults.Background,
			LongContext:          ep.Defaults.LongContext,
			LongContextThreshold: ep.Defaults.LongContextThreshold,
		},
		ModelRoutes: ep.ModelRoutes,
		Providers:   providers,
	}, true
}

// ConnectorTarget builds the dispatch target the C3 connector needs
// for the resolved providerID, or ok=false if no such provider is
// configured (surfaced by the caller as route_not_found).
func (c *Config) ConnectorTarget(providerID string) (connector.Target, bool) {
	p, ok := c.ProviderByID(providerID)
	if !ok {
		return connector.Target{}, false
	}
	return connector.Target{
		BaseURL:  p.BaseURL,
		APIKey:   p.APIKey,
		AuthMode: connector.AuthMode(p.AuthMode),
		Type:     connector.ProviderType(p.Type),
	}, true
}
