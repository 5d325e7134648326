package probe

import (
	"context"
	"errors"
	"time"

	"machinaos/proxyrouter/pkg/providers"
)

// ErrNoProviders is reported when no provider is enabled.
var ErrNoProviders = errors.New("no enabled proxy providers")

// ServiceCheck fails while the routing service has no enabled provider.
func ServiceCheck(enabled func() bool) CheckFunc {
	return func(context.Context) error {
		if !enabled() {
			return ErrNoProviders
		}
		return nil
	}
}

// ProviderLister is satisfied by the config store.
type ProviderLister interface {
	ListProviders(ctx context.Context) ([]providers.Config, error)
}

// StoreCheck fails when the config store cannot be read.
func StoreCheck(s ProviderLister) CheckFunc {
	return func(ctx context.Context) error {
		_, err := s.ListProviders(ctx)
		return err
	}
}

// SpendReader is satisfied by the usage ledger.
type SpendReader interface {
	SpentSince(ctx context.Context, t time.Time) (float64, error)
}

// LedgerCheck fails when the usage ledger cannot be queried.
func LedgerCheck(l SpendReader) CheckFunc {
	return func(ctx context.Context) error {
		_, err := l.SpentSince(ctx, time.Now())
		return err
	}
}

// BudgetCheck fails while the daily budget is exhausted.
func BudgetCheck(exceeded func() error) CheckFunc {
	return func(context.Context) error {
		return exceeded()
	}
}
