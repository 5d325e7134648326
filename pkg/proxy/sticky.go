package proxy

import (
	"time"

	"github.com/maypok86/otter"
)

// binding pins a caller session to a provider and the provider-side
// session id, so repeated requests keep the same exit IP.
type binding struct {
	Provider     string
	ProxySession string
}

// stickyBindings expires each binding when its provider session would.
type stickyBindings struct {
	cache otter.CacheWithVariableTTL[string, binding]
}

func newStickyBindings(capacity int) (*stickyBindings, error) {
	if capacity <= 0 {
		capacity = 10_000
	}
	cache, err := otter.MustBuilder[string, binding](capacity).
		Cost(func(string, binding) uint32 { return 1 }).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, err
	}
	return &stickyBindings{cache: cache}, nil
}

func bindingKey(ruleID, sessionID string) string {
	return ruleID + "\x00" + sessionID
}

func (b *stickyBindings) get(ruleID, sessionID string) (binding, bool) {
	return b.cache.Get(bindingKey(ruleID, sessionID))
}

func (b *stickyBindings) set(ruleID, sessionID string, v binding, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	b.cache.Set(bindingKey(ruleID, sessionID), v, ttl)
}

func (b *stickyBindings) clear() {
	b.cache.Clear()
}

func (b *stickyBindings) size() int {
	return b.cache.Size()
}

func (b *stickyBindings) close() {
	b.cache.Close()
}
