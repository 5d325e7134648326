// Package budget enforces a daily spend cap on proxy traffic.
//
// # Overview
//
// Residential proxy traffic is billed per gigabyte, and a runaway workflow
// can burn through an account quickly. The Tracker sums the cost of every
// attempt within the current calendar day and reports when the cap is
// reached; the proxy service then refuses to select providers until the
// next day starts.
//
// # Usage
//
//	tracker := budget.NewTracker(budget.Config{
//	    DailyLimit:     50.00, // $50/day
//	    AlertThreshold: 0.8,   // Alert at 80%
//	})
//
//	tracker.Add(0.00195313)
//
//	if err := tracker.Err(); err != nil {
//	    // *BudgetExceededError, errors.Is(err, budget.ErrBudgetExceeded)
//	}
//
// # Periods
//
// Days start at midnight in Config.Location (UTC by default). At startup
// the tracker can be seeded from persisted usage with Seed so a restart
// does not reset the day's spend.
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package budget
