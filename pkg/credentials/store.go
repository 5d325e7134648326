package credentials

import (
	"context"
	"errors"
	"fmt"

	"machinaos/proxyrouter/pkg/providers"
)

// Store resolves provider account credentials.
//
// GetProviderCredentials returns (nil, nil) when the store has no
// credentials for the provider; the proxy URL is then built without
// userinfo. Errors are reserved for backend failures.
type Store interface {
	GetProviderCredentials(ctx context.Context, name string) (*providers.Credentials, error)
}

// ChainStore tries stores in order; the first non-nil result wins.
type ChainStore struct {
	stores []Store
}

// NewChainStore creates a chain over the given stores. Nil stores are skipped.
func NewChainStore(stores ...Store) *ChainStore {
	chain := &ChainStore{}
	for _, s := range stores {
		if s != nil {
			chain.stores = append(chain.stores, s)
		}
	}
	return chain
}

// GetProviderCredentials implements Store. Errors from earlier stores
// are returned only if no later store has credentials.
func (c *ChainStore) GetProviderCredentials(ctx context.Context, name string) (*providers.Credentials, error) {
	var errs []error
	for _, s := range c.stores {
		creds, err := s.GetProviderCredentials(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if creds != nil {
			return creds, nil
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("resolving credentials for %q: %w", name, errors.Join(errs...))
	}
	return nil, nil
}
