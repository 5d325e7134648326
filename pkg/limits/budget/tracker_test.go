package budget

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTracker_NoLimit(t *testing.T) {
	tracker := NewTracker(Config{})
	tracker.Add(1000)

	status := tracker.Check()
	if !status.Allowed {
		t.Error("tracker without limit must always allow")
	}
	if status.Used != 1000 {
		t.Errorf("Used = %v, want 1000", status.Used)
	}
	if err := tracker.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestTracker_Limit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	tracker := NewTracker(Config{DailyLimit: 10, AlertThreshold: 0.8, Now: clock.Now})

	tests := []struct {
		name      string
		add       float64
		wantAllow bool
		wantAlert bool
	}{
		{name: "under threshold", add: 5, wantAllow: true},
		{name: "alert threshold", add: 3, wantAllow: true, wantAlert: true},
		{name: "exhausted", add: 2, wantAllow: false, wantAlert: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker.Add(tt.add)
			status := tracker.Check()
			if status.Allowed != tt.wantAllow {
				t.Errorf("Allowed = %v, want %v (used %v)", status.Allowed, tt.wantAllow, status.Used)
			}
			if status.AlertTriggered != tt.wantAlert {
				t.Errorf("AlertTriggered = %v, want %v", status.AlertTriggered, tt.wantAlert)
			}
		})
	}

	err := tracker.Err()
	var be *BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("Err() = %v, want *BudgetExceededError", err)
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Error("expected ErrBudgetExceeded match")
	}
	wantReset := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if !be.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", be.ResetAt, wantReset)
	}
	if !strings.Contains(err.Error(), "budget.daily_limit") {
		t.Errorf("error message should tell how to continue: %q", err.Error())
	}
}

func TestTracker_Rollover(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)}
	tracker := NewTracker(Config{DailyLimit: 1, Now: clock.Now})

	tracker.Add(2)
	if tracker.Check().Allowed {
		t.Fatal("expected exhausted budget")
	}

	clock.Advance(time.Hour)
	status := tracker.Check()
	if !status.Allowed || status.Used != 0 {
		t.Errorf("after midnight: Allowed=%v Used=%v, want fresh period", status.Allowed, status.Used)
	}
	if tracker.TotalSpent() != 2 {
		t.Errorf("TotalSpent() = %v, want 2", tracker.TotalSpent())
	}
}

func TestTracker_Location(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	// 15:00 UTC is 01:00 next day in UTC+10.
	clock := &fakeClock{now: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	tracker := NewTracker(Config{DailyLimit: 1, Location: loc, Now: clock.Now})

	want := time.Date(2026, 3, 11, 0, 0, 0, 0, loc)
	if got := tracker.PeriodStart(); !got.Equal(want) {
		t.Errorf("PeriodStart() = %v, want %v", got, want)
	}
}

func TestTracker_SeedAndSetLimit(t *testing.T) {
	tracker := NewTracker(Config{DailyLimit: 5})
	tracker.Seed(6)
	if tracker.Check().Allowed {
		t.Error("seeded spend above limit should block")
	}

	tracker.SetLimit(10, 0)
	if !tracker.Check().Allowed {
		t.Error("raised limit should allow")
	}
}

func TestTracker_ConcurrentAdd(t *testing.T) {
	tracker := NewTracker(Config{DailyLimit: 1e9})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Add(0.5)
			}
		}()
	}
	wg.Wait()

	if got := tracker.Check().Used; got != 2500 {
		t.Errorf("Used = %v, want 2500", got)
	}
}
