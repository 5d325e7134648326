package proxy

import (
	"fmt"
	"sort"

	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
)

// providerEntry is a validated provider with its compiled template.
type providerEntry struct {
	config   providers.Config
	template *providers.Template
}

// snapshot is an immutable view of providers and rules. Selections load
// one snapshot and never observe a partial update.
type snapshot struct {
	providers map[string]*providerEntry

	// ordered by priority, then name
	ordered []*providerEntry

	table   *routing.Table
	enabled bool
}

// buildSnapshot validates every provider and rule. Any invalid entry
// fails the whole build.
func buildSnapshot(provs []providers.Config, rules []routing.Rule) (*snapshot, error) {
	snap := &snapshot{providers: make(map[string]*providerEntry, len(provs))}

	for _, cfg := range provs {
		cfg = cfg.Clone()
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := snap.providers[cfg.Name]; dup {
			return nil, providers.NewConfigError(cfg.Name, "name", fmt.Sprintf("duplicate provider %q", cfg.Name))
		}
		tmpl, err := providers.ResolveTemplate(&cfg)
		if err != nil {
			return nil, err
		}

		entry := &providerEntry{config: cfg, template: tmpl}
		snap.providers[cfg.Name] = entry
		snap.ordered = append(snap.ordered, entry)
		if cfg.Enabled {
			snap.enabled = true
		}
	}

	sort.Slice(snap.ordered, func(i, j int) bool {
		a, b := snap.ordered[i].config, snap.ordered[j].config
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Name < b.Name
	})

	table, err := routing.NewTable(rules)
	if err != nil {
		return nil, err
	}
	snap.table = table
	return snap, nil
}

func emptySnapshot() *snapshot {
	table, _ := routing.NewTable(nil)
	return &snapshot{providers: map[string]*providerEntry{}, table: table}
}

func (s *snapshot) providerConfigs() []providers.Config {
	out := make([]providers.Config, len(s.ordered))
	for i, e := range s.ordered {
		out[i] = e.config.Clone()
	}
	return out
}
