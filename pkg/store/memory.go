package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
)

// MemoryStore is a map-backed ConfigStore for tests and ephemeral
// deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	providers map[string]providers.Config
	rules     map[string]routing.Rule
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers: make(map[string]providers.Config),
		rules:     make(map[string]routing.Rule),
		now:       time.Now,
	}
}

// ListProviders returns providers sorted by name.
func (s *MemoryStore) ListProviders(_ context.Context) ([]providers.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]providers.Config, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListRoutingRules returns rules sorted by ID.
func (s *MemoryStore) ListRoutingRules(_ context.Context) ([]routing.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]routing.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveProvider upserts a provider by name.
func (s *MemoryStore) SaveProvider(_ context.Context, cfg providers.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg = cfg.Clone()
	cfg.UpdatedAt = s.now().UTC()
	s.providers[cfg.Name] = cfg
	return nil
}

// SaveRoutingRule upserts a rule by ID.
func (s *MemoryStore) SaveRoutingRule(_ context.Context, rule routing.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules[rule.ID] = rule.Clone()
	return nil
}

// DeleteRoutingRule removes a rule. Unknown IDs return ErrNotFound.
func (s *MemoryStore) DeleteRoutingRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
