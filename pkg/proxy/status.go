package proxy

import (
	"machinaos/proxyrouter/pkg/health"
	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
)

// Status is the read-only view served to dashboards.
type Status struct {
	Enabled   bool                    `json:"enabled"`
	Providers []providers.Config      `json:"providers"`
	Stats     map[string]health.Stats `json:"stats"`
	Rules     []routing.Rule          `json:"rules"`
	InFlight  map[string]int64        `json:"in_flight"`
	Matches   routing.MatchStats      `json:"matches"`

	// Budget is nil when no daily budget is tracked.
	Budget *budget.Status `json:"budget,omitempty"`

	StickySessions int `json:"sticky_sessions"`
}

// GetStats returns health stats for every configured provider. Providers
// without reports show the neutral cold-start state.
func (s *Service) GetStats() map[string]health.Stats {
	snap := s.snap.Load()
	out := make(map[string]health.Stats, len(snap.ordered))
	for _, e := range snap.ordered {
		out[e.config.Name], _ = s.health.Stats(e.config.Name)
	}
	return out
}

// GetProviders returns provider configs ordered by priority, then name.
func (s *Service) GetProviders() []providers.Config {
	return s.snap.Load().providerConfigs()
}

// GetRules returns routing rules in evaluation order.
func (s *Service) GetRules() []routing.Rule {
	return s.snap.Load().table.Rules()
}

// Status returns providers, health and budget in one snapshot.
func (s *Service) Status() Status {
	snap := s.snap.Load()

	st := Status{
		Enabled:        snap.enabled,
		Providers:      snap.providerConfigs(),
		Stats:          s.GetStats(),
		Rules:          snap.table.Rules(),
		InFlight:       s.limits.InFlight(),
		Matches:        s.matches.Snapshot(),
		StickySessions: s.sticky.size(),
	}
	if s.budget != nil {
		b := s.budget.Check()
		st.Budget = &b
	}
	return st
}
