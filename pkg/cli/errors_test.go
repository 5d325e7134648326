package cli

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"machinaos/proxyrouter/pkg/config"
	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/providers"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{err: NewConfigError("budget.daily_limit", "must not be negative"), want: "invalid configuration at budget.daily_limit: must not be negative"},
		{err: NewConfigError("", "no providers configured"), want: "invalid configuration: no providers configured"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCommandError("status", cause)

	if err.Error() != "status: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("CommandError should unwrap to its cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "generic", err: errors.New("boom"), want: ExitFailure},
		{name: "flag", err: NewConfigError("--since", "bad duration"), want: ExitConfig},
		{name: "validation", err: fmt.Errorf("loading: %w", config.ValidationError{Errors: []config.FieldError{{Field: "a", Message: "b"}}}), want: ExitConfig},
		{name: "template", err: NewCommandError("render", providers.NewConfigError("gw", "template", "unknown preset")), want: ExitConfig},
		{name: "budget", err: NewCommandError("render", &budget.BudgetExceededError{Limit: 10, Used: 10, ResetAt: time.Now()}), want: ExitBudget},
		{name: "not ready", err: NewCommandError("status", ErrNotReady), want: ExitNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
