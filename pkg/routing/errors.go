package routing

import (
	"errors"
	"fmt"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("routing rule not found")

	// ErrLastCatchAll is returned when removing a rule would leave the
	// table without a catch-all rule.
	ErrLastCatchAll = errors.New("cannot remove the last catch-all rule")
)

// RuleNotFoundError is returned when an operation names an unknown rule.
type RuleNotFoundError struct {
	// ID is the requested rule ID.
	ID string
}

// Error implements the error interface.
func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("routing rule %q not found", e.ID)
}

// Is implements error matching for errors.Is().
func (e *RuleNotFoundError) Is(target error) bool {
	return target == ErrRuleNotFound
}
