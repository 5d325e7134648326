package budget

import "time"

// Config contains the daily spend cap.
type Config struct {
	// DailyLimit is the maximum USD spend per calendar day (0 = no limit).
	DailyLimit float64

	// AlertThreshold is the fraction (0.0-1.0) of the limit at which
	// Status.AlertTriggered is set. For example, 0.8 alerts at 80%.
	AlertThreshold float64

	// Location defines calendar-day boundaries. Default: UTC
	Location *time.Location

	// Now overrides time.Now in tests.
	Now func() time.Time
}

// Status contains the budget status for the current day.
type Status struct {
	// Allowed indicates if further spending is permitted.
	Allowed bool `json:"allowed"`

	// Reason explains why spending was rejected (if Allowed=false).
	Reason string `json:"reason,omitempty"`

	// Limit is the configured daily limit in USD (0 = unlimited).
	Limit float64 `json:"limit"`

	// Used is the amount spent in USD today.
	Used float64 `json:"used"`

	// Remaining is the budget remaining in USD.
	Remaining float64 `json:"remaining"`

	// Percentage is the fraction of the budget used (0.0-1.0+).
	Percentage float64 `json:"percentage"`

	// ResetAt is the start of the next calendar day.
	ResetAt time.Time `json:"reset_at"`

	// AlertTriggered indicates if the alert threshold was reached.
	AlertTriggered bool `json:"alert_triggered"`
}
