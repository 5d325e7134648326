package concurrency

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Set keeps one Limiter per provider.
type Set struct {
	limiters *xsync.Map[string, *Limiter]
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{limiters: xsync.NewMap[string, *Limiter]()}
}

// Get returns the provider's limiter, creating an unlimited one if the
// provider was never configured.
func (s *Set) Get(name string) *Limiter {
	l, _ := s.limiters.LoadOrCompute(name, func() (*Limiter, bool) {
		return NewLimiter(0), false
	})
	return l
}

// Configure installs a limiter with the given limit. An existing limiter
// with the same limit is kept so in-flight accounting survives config
// reloads; a changed limit replaces it, and holders of the old limiter
// release into the old one.
func (s *Set) Configure(name string, limit int) *Limiter {
	l, _ := s.limiters.Compute(name, func(old *Limiter, loaded bool) (*Limiter, xsync.ComputeOp) {
		if loaded && old.Limit() == max(0, limit) {
			return old, xsync.CancelOp
		}
		return NewLimiter(limit), xsync.UpdateOp
	})
	return l
}

// Remove drops the provider's limiter.
func (s *Set) Remove(name string) {
	s.limiters.Delete(name)
}

// InFlight returns in-flight counts by provider.
func (s *Set) InFlight() map[string]int64 {
	out := make(map[string]int64, s.limiters.Size())
	s.limiters.Range(func(name string, l *Limiter) bool {
		out[name] = l.InFlight()
		return true
	})
	return out
}
