// Package credentials resolves proxy provider account credentials.
//
// Credentials never live in the provider configuration itself. A Store
// looks them up by provider name at selection time. Stores compose:
//
//	file, _ := credentials.NewFileStore("/etc/proxyrouter/credentials.yaml")
//	chain := credentials.NewChainStore(credentials.NewEnvStore(""), file)
//	cached, _ := credentials.NewCachedStore(chain, 5*time.Minute, 256)
//	file.OnReload(cached.InvalidateAll)
//
// A store that has nothing for a provider returns (nil, nil); the proxy
// URL is then built without credentials.
package credentials
