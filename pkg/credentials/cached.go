package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"machinaos/proxyrouter/pkg/providers"
)

// cacheEntry wraps a lookup result so "no credentials" is cached too.
type cacheEntry struct {
	creds *providers.Credentials
}

// CachedStore caches another store's results for a TTL. Errors are not
// cached.
type CachedStore struct {
	next  Store
	cache otter.Cache[string, cacheEntry]
}

// NewCachedStore wraps next with a cache of up to capacity providers.
func NewCachedStore(next Store, ttl time.Duration, capacity int) (*CachedStore, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	cache, err := otter.MustBuilder[string, cacheEntry](capacity).
		Cost(func(_ string, _ cacheEntry) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

// GetProviderCredentials implements Store.
func (s *CachedStore) GetProviderCredentials(ctx context.Context, name string) (*providers.Credentials, error) {
	if entry, ok := s.cache.Get(name); ok {
		return copyCredentials(entry.creds), nil
	}

	creds, err := s.next.GetProviderCredentials(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(name, cacheEntry{creds: copyCredentials(creds)})
	return creds, nil
}

// Invalidate drops the cached entry for one provider.
func (s *CachedStore) Invalidate(name string) {
	s.cache.Delete(name)
}

// InvalidateAll drops every cached entry.
func (s *CachedStore) InvalidateAll() {
	s.cache.Clear()
}

// Close releases the cache.
func (s *CachedStore) Close() {
	s.cache.Close()
}

func copyCredentials(c *providers.Credentials) *providers.Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
