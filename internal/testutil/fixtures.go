package testutil

import (
	"context"
	"testing"

	"machinaos/proxyrouter/pkg/credentials"
	"machinaos/proxyrouter/pkg/health"
	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/routing"
	"machinaos/proxyrouter/pkg/store"
)

// Provider returns an enabled provider whose gateway is
// "gw.<name>.example:8000", using the plain template.
func Provider(name string, priority int, costPerGB float64) providers.Config {
	return providers.Config{
		Name:              name,
		Enabled:           true,
		Priority:          priority,
		Weight:            1,
		CostPerGB:         costPerGB,
		GatewayHost:       Gateway(name),
		GatewayPort:       8000,
		URLTemplatePreset: providers.PresetPlain,
	}
}

// Gateway returns the gateway host used by Provider.
func Gateway(name string) string {
	return "gw." + name + ".example"
}

// CatchAll returns the default catch-all rule with the given retry policy.
func CatchAll(maxRetries int, failover bool) routing.Rule {
	r := routing.DefaultCatchAll()
	r.MaxRetries = maxRetries
	r.Failover = failover
	return r
}

// ServiceOptions tunes NewService.
type ServiceOptions struct {
	Budget *budget.Tracker
	Health health.Config
}

// NewService builds a proxy.Service over a seeded memory store. Every
// provider gets credentials "u<name>"/"pw".
func NewService(t testing.TB, provs []providers.Config, rules []routing.Rule, opts ServiceOptions) (*proxy.Service, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	ms := store.NewMemoryStore()
	if err := store.Seed(ctx, ms, provs, rules); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	creds := make(map[string]providers.Credentials, len(provs))
	for _, p := range provs {
		creds[p.Name] = providers.Credentials{Username: "u" + p.Name, Password: "pw"}
	}

	hc := opts.Health
	if hc.Seed == 0 {
		hc.Seed = 1
	}
	svc, err := proxy.NewService(ctx, proxy.Options{
		Store:       ms,
		Credentials: credentials.NewStaticStore(creds),
		Health:      health.NewScorer(hc),
		Budget:      opts.Budget,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, ms
}
