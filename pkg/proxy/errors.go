package proxy

import (
	"errors"
	"fmt"
)

// Common service errors that can be checked with errors.Is().
var (
	// ErrNoProviderAvailable is returned when no enabled provider can
	// serve a request.
	ErrNoProviderAvailable = errors.New("no proxy provider available")

	// ErrProviderNotFound is returned when an operation names an unknown
	// provider.
	ErrProviderNotFound = errors.New("proxy provider not found")
)

// NoHealthyProviderError is returned when selection found no candidate.
// It is recoverable: the caller may retry later.
type NoHealthyProviderError struct {
	// Target is the requested URL's hostname (may be empty).
	Target string

	// RuleID is the matched routing rule (empty when the service is
	// disabled).
	RuleID string

	// Country is the exit country constraint, if any.
	Country string

	// Reason describes why no provider qualified.
	Reason string
}

// Error implements the error interface.
func (e *NoHealthyProviderError) Error() string {
	msg := "no proxy provider available"
	if e.Target != "" {
		msg += fmt.Sprintf(" for %s", e.Target)
	}
	if e.RuleID != "" {
		msg += fmt.Sprintf(" (rule %s", e.RuleID)
		if e.Country != "" {
			msg += fmt.Sprintf(", country %s", e.Country)
		}
		msg += ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is implements error matching for errors.Is().
func (e *NoHealthyProviderError) Is(target error) bool {
	return target == ErrNoProviderAvailable
}

// ProviderNotFoundError names an unknown provider.
type ProviderNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("proxy provider %q not found", e.Name)
}

// Is implements error matching for errors.Is().
func (e *ProviderNotFoundError) Is(target error) bool {
	return target == ErrProviderNotFound
}
