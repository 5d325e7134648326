package store

import (
	"context"
	"errors"
	"fmt"

	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
)

// ErrNotFound is returned when a deleted entity does not exist.
var ErrNotFound = errors.New("not found")

// ConfigStore persists provider definitions and routing rules.
//
// Saves are upserts keyed by provider name and rule ID. List results are
// copies the caller may modify.
type ConfigStore interface {
	ListProviders(ctx context.Context) ([]providers.Config, error)
	ListRoutingRules(ctx context.Context) ([]routing.Rule, error)
	SaveProvider(ctx context.Context, cfg providers.Config) error
	SaveRoutingRule(ctx context.Context, rule routing.Rule) error
	DeleteRoutingRule(ctx context.Context, id string) error
	Close() error
}

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("save_provider", "list_rules", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("config store error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func newStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// Seed upserts providers and rules from the configuration file into the
// store. Entries already in the store but absent from the file are kept,
// so changes made through the API survive restarts.
func Seed(ctx context.Context, s ConfigStore, provs []providers.Config, rules []routing.Rule) error {
	for _, p := range provs {
		if err := s.SaveProvider(ctx, p); err != nil {
			return fmt.Errorf("seeding provider %q: %w", p.Name, err)
		}
	}
	for _, r := range rules {
		if err := s.SaveRoutingRule(ctx, r); err != nil {
			return fmt.Errorf("seeding routing rule %q: %w", r.ID, err)
		}
	}
	return nil
}
