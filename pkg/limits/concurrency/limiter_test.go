package concurrency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLimiter_TryAcquire(t *testing.T) {
	l := NewLimiter(2)

	if !l.TryAcquire() || !l.TryAcquire() {
		t.Fatal("expected two slots")
	}
	if l.TryAcquire() {
		t.Error("third acquire should fail")
	}
	if !l.Saturated() {
		t.Error("limiter should be saturated")
	}
	if l.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", l.InFlight())
	}

	l.Release()
	if !l.TryAcquire() {
		t.Error("slot should be free after Release")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 1000; i++ {
		if !l.TryAcquire() {
			t.Fatal("unlimited limiter rejected acquire")
		}
	}
	if l.Saturated() {
		t.Error("unlimited limiter is never saturated")
	}
	if l.InFlight() != 1000 {
		t.Errorf("InFlight() = %d, want 1000", l.InFlight())
	}
}

func TestLimiter_AcquireBlocksUntilRelease(t *testing.T) {
	l := NewLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := l.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should block")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not proceed after Release")
	}
}

func TestLimiter_AcquireHonorsContext(t *testing.T) {
	l := NewLimiter(1)
	l.TryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := l.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want deadline exceeded", err)
	}
	if l.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", l.InFlight())
	}
}

func TestLimiter_NeverExceedsLimit(t *testing.T) {
	const limit = 3
	l := NewLimiter(limit)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		current int
		peak    int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				return
			}
			mu.Lock()
			current++
			peak = max(peak, current)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()

	if peak > limit {
		t.Errorf("peak concurrency %d exceeded limit %d", peak, limit)
	}
}

func TestSet_Configure(t *testing.T) {
	s := NewSet()

	a := s.Configure("p1", 2)
	if again := s.Configure("p1", 2); again != a {
		t.Error("Configure with same limit should keep the limiter")
	}
	if b := s.Configure("p1", 5); b == a || b.Limit() != 5 {
		t.Error("Configure with new limit should replace the limiter")
	}

	unknown := s.Get("p2")
	if unknown.Limit() != 0 {
		t.Errorf("unconfigured provider limit = %d, want 0", unknown.Limit())
	}

	s.Get("p1").TryAcquire()
	if got := s.InFlight()["p1"]; got != 1 {
		t.Errorf("InFlight()[p1] = %d, want 1", got)
	}

	s.Remove("p1")
	if _, ok := s.InFlight()["p1"]; ok {
		t.Error("Remove() should drop the limiter")
	}
}
