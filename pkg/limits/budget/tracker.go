package budget

import (
	"sync"
	"time"
)

// Tracker accumulates proxy spend per calendar day and reports whether
// the daily cap still allows traffic.
//
// The period rolls over at midnight in the configured location. Spend
// from the previous day is discarded on the first call after rollover.
type Tracker struct {
	config Config

	// dayStart is the start of the current period
	dayStart time.Time

	// spent is the spend within the current period
	spent float64

	// totalSpent is the all-time spend seen by this tracker
	totalSpent float64

	mu sync.Mutex
}

// NewTracker creates a new budget tracker.
//
// Example:
//
//	tracker := budget.NewTracker(budget.Config{
//	    DailyLimit:     50.00, // $50/day
//	    AlertThreshold: 0.8,   // Alert at 80%
//	})
func NewTracker(config Config) *Tracker {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	t := &Tracker{config: config}
	t.dayStart = t.startOfDay(config.Now())
	return t
}

// Add records spending in the current period.
func (t *Tracker) Add(amount float64) {
	if amount <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	t.spent += amount
	t.totalSpent += amount
}

// Seed sets the current period's spend, typically restored from the
// usage ledger at startup.
func (t *Tracker) Seed(spent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	t.spent = spent
}

// Check returns the current status. With no limit configured the status
// is always allowed.
func (t *Tracker) Check() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()

	resetAt := t.dayStart.AddDate(0, 0, 1)
	limit := t.config.DailyLimit
	if limit <= 0 {
		return Status{
			Allowed: true,
			Used:    t.spent,
			ResetAt: resetAt,
		}
	}

	percentage := t.spent / limit
	status := Status{
		Allowed:        t.spent < limit,
		Limit:          limit,
		Used:           t.spent,
		Remaining:      max(0, limit-t.spent),
		Percentage:     percentage,
		ResetAt:        resetAt,
		AlertTriggered: t.config.AlertThreshold > 0 && percentage >= t.config.AlertThreshold,
	}
	if !status.Allowed {
		status.Reason = "daily budget limit exceeded"
	}
	return status
}

// Err returns a *BudgetExceededError when the cap is exhausted, else nil.
func (t *Tracker) Err() error {
	status := t.Check()
	if status.Allowed {
		return nil
	}
	return &BudgetExceededError{
		Limit:   status.Limit,
		Used:    status.Used,
		ResetAt: status.ResetAt,
	}
}

// PeriodStart returns the start of the current calendar day.
func (t *Tracker) PeriodStart() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return t.dayStart
}

// TotalSpent returns the all-time spend recorded through Add.
func (t *Tracker) TotalSpent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSpent
}

// SetLimit updates the daily limit (hot-reload support).
func (t *Tracker) SetLimit(daily, alertThreshold float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.config.DailyLimit = daily
	t.config.AlertThreshold = alertThreshold
}

// rollover starts a new period when the day changed. Caller holds mu.
func (t *Tracker) rollover() {
	today := t.startOfDay(t.config.Now())
	if today.After(t.dayStart) {
		t.dayStart = today
		t.spent = 0
	}
}

func (t *Tracker) startOfDay(now time.Time) time.Time {
	local := now.In(t.config.Location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.config.Location)
}
