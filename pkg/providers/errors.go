package providers

import (
	"errors"
	"fmt"
)

// Common provider errors that can be checked with errors.Is().
var (
	// ErrProxyConfig marks configuration invariant violations: a template
	// missing its gateway, a routing table without a catch-all rule, an
	// invalid provider definition. These are setup bugs, never retried.
	ErrProxyConfig = errors.New("proxy configuration error")

	// ErrProvider marks provider-specific formatting or transport failures.
	ErrProvider = errors.New("proxy provider error")
)

// ConfigError represents a proxy configuration error.
// This occurs when a provider, template or routing rule is invalid.
type ConfigError struct {
	// Provider is the name of the provider with invalid configuration
	// (empty for errors that are not tied to a single provider).
	Provider string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Provider != "" && e.Field != "":
		return fmt.Sprintf("provider %q configuration error for field %q: %s",
			e.Provider, e.Field, e.Message)
	case e.Provider != "":
		return fmt.Sprintf("provider %q configuration error: %s", e.Provider, e.Message)
	case e.Field != "":
		return fmt.Sprintf("proxy configuration error for field %q: %s", e.Field, e.Message)
	default:
		return fmt.Sprintf("proxy configuration error: %s", e.Message)
	}
}

// Is implements error matching for errors.Is().
func (e *ConfigError) Is(target error) bool {
	return target == ErrProxyConfig
}

// NewConfigError creates a ConfigError for the given provider and field.
func NewConfigError(provider, field, message string) *ConfigError {
	return &ConfigError{
		Provider: provider,
		Field:    field,
		Message:  message,
	}
}

// ProviderError wraps a provider-specific formatting or transport failure,
// tagged with the provider name for diagnostics.
type ProviderError struct {
	// Provider is the name of the provider that failed
	Provider string

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, msg)
}

// Is implements error matching for errors.Is().
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}
