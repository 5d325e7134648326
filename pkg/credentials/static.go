package credentials

import (
	"context"
	"os"

	"machinaos/proxyrouter/pkg/providers"
)

// StaticStore serves credentials given inline in the configuration file.
// Values may reference environment variables as ${NAME}; they are
// expanded once at construction.
type StaticStore struct {
	creds map[string]providers.Credentials
}

// NewStaticStore creates a store from inline credentials.
func NewStaticStore(creds map[string]providers.Credentials) *StaticStore {
	expanded := make(map[string]providers.Credentials, len(creds))
	for name, c := range creds {
		expanded[name] = providers.Credentials{
			Username: os.ExpandEnv(c.Username),
			Password: os.ExpandEnv(c.Password),
		}
	}
	return &StaticStore{creds: expanded}
}

// GetProviderCredentials implements Store.
func (s *StaticStore) GetProviderCredentials(_ context.Context, name string) (*providers.Credentials, error) {
	c, ok := s.creds[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
