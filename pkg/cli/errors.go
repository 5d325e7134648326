package cli

import (
	"errors"
	"fmt"

	"machinaos/proxyrouter/pkg/config"
	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/providers"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitConfig   = 2
	ExitBudget   = 3
	ExitNotReady = 4
)

// ErrNotReady is returned by commands that found the server up but not
// ready to route.
var ErrNotReady = errors.New("proxy router not ready")

// ConfigError is an invalid flag, config file or provider template.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration at %s: %s", e.Field, e.Message)
}

// CommandError is a command that failed after its input was accepted.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewConfigError returns a ConfigError for field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewCommandError wraps err as a failure of command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// ExitCode maps a command error to the process exit status. Config
// problems exit 2 whether they surface as flag errors, validation errors
// or bad provider templates.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfgErr *ConfigError
	var valErr config.ValidationError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &valErr), errors.Is(err, providers.ErrProxyConfig):
		return ExitConfig
	case errors.Is(err, budget.ErrBudgetExceeded):
		return ExitBudget
	case errors.Is(err, ErrNotReady):
		return ExitNotReady
	default:
		return ExitFailure
	}
}
