package credentials

import (
	"context"
	"os"
	"strings"

	"machinaos/proxyrouter/pkg/providers"
)

// DefaultEnvPrefix namespaces provider credential variables.
const DefaultEnvPrefix = "PROXYROUTER_PROVIDER_"

// EnvStore loads credentials from environment variables.
//
// Provider names are upper-cased with hyphens and dots replaced by
// underscores. With the default prefix, provider "bright-data" reads
// PROXYROUTER_PROVIDER_BRIGHT_DATA_USERNAME and
// PROXYROUTER_PROVIDER_BRIGHT_DATA_PASSWORD.
type EnvStore struct {
	Prefix string

	// lookup overrides os.LookupEnv in tests.
	lookup func(string) (string, bool)
}

// NewEnvStore creates an environment store. An empty prefix uses
// DefaultEnvPrefix.
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvStore{Prefix: prefix, lookup: os.LookupEnv}
}

// GetProviderCredentials implements Store.
func (s *EnvStore) GetProviderCredentials(_ context.Context, name string) (*providers.Credentials, error) {
	base := s.Prefix + envName(name)
	username, userOK := s.lookup(base + "_USERNAME")
	password, passOK := s.lookup(base + "_PASSWORD")
	if !userOK && !passOK {
		return nil, nil
	}
	return &providers.Credentials{Username: username, Password: password}, nil
}

// VariableNames returns the username and password variable names for a
// provider, for diagnostics.
func (s *EnvStore) VariableNames(name string) (string, string) {
	base := s.Prefix + envName(name)
	return base + "_USERNAME", base + "_PASSWORD"
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}
