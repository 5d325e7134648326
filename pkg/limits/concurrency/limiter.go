package concurrency

import (
	"context"
	"sync/atomic"
)

// Limiter limits the number of simultaneous in-flight requests through one
// provider.
//
// It is a counting semaphore over a buffered channel so callers can either
// try without waiting or block until a slot frees up or their context
// ends. A limit of 0 means unlimited; in-flight requests are still counted.
//
// # Thread Safety
//
// Limiter is safe for concurrent use.
type Limiter struct {
	limit    int
	slots    chan struct{} // nil when unlimited
	inFlight atomic.Int64
}

// NewLimiter creates a limiter allowing limit concurrent holders.
//
// Example:
//
//	limiter := concurrency.NewLimiter(50)
//	if err := limiter.Acquire(ctx); err != nil {
//	    return err
//	}
//	defer limiter.Release()
func NewLimiter(limit int) *Limiter {
	l := &Limiter{limit: max(0, limit)}
	if l.limit > 0 {
		l.slots = make(chan struct{}, l.limit)
	}
	return l
}

// TryAcquire acquires a slot without waiting.
// If this returns true, the caller MUST call Release() when done.
func (l *Limiter) TryAcquire() bool {
	if l.slots == nil {
		l.inFlight.Add(1)
		return true
	}
	select {
	case l.slots <- struct{}{}:
		l.inFlight.Add(1)
		return true
	default:
		return false
	}
}

// Acquire blocks until a slot is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.slots == nil {
		l.inFlight.Add(1)
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		l.inFlight.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with TryAcquire or Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	if l.slots == nil {
		return
	}
	select {
	case <-l.slots:
	default:
		// Release without a matching acquire; ignore.
	}
}

// Saturated reports whether every slot is taken.
func (l *Limiter) Saturated() bool {
	return l.slots != nil && len(l.slots) >= l.limit
}

// InFlight returns the current number of holders.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

// Limit returns the configured limit (0 = unlimited).
func (l *Limiter) Limit() int {
	return l.limit
}
