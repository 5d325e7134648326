// Proxyrouter routes outbound HTTP requests through residential proxy
// providers.
//
// It picks a provider per target URL from domain routing rules and live
// health scores, renders the provider-specific proxy credentials, retries
// failed requests through the next-best provider and accounts every byte
// against a daily budget.
//
// Usage:
//
//	# Start the API server
//	proxyrouter run --config config.yaml
//
//	# Check configuration and provider templates
//	proxyrouter validate --config config.yaml
//
//	# Show the proxy URL a target would use
//	proxyrouter render https://www.example.com --country US
//
//	# Summarize spend by provider
//	proxyrouter usage --since 24h
package main

import (
	"os"

	"machinaos/proxyrouter/pkg/cli"
)

func main() {
	os.Exit(cli.ExitCode(newRootCmd().Execute()))
}
