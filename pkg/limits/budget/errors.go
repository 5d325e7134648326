package budget

import (
	"errors"
	"fmt"
	"time"
)

// ErrBudgetExceeded matches *BudgetExceededError with errors.Is.
var ErrBudgetExceeded = errors.New("proxy budget exceeded")

// BudgetExceededError is returned while the daily spend cap is exhausted.
// Provider selection is blocked until ResetAt.
type BudgetExceededError struct {
	Limit   float64
	Used    float64
	ResetAt time.Time
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily proxy budget of $%.2f exhausted ($%.4f spent); resets at %s; raise budget.daily_limit to continue",
		e.Limit, e.Used, e.ResetAt.Format(time.RFC3339))
}

// Is implements error matching for errors.Is().
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
