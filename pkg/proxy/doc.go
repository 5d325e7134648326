// Package proxy selects an outbound proxy for each target URL.
//
// Service is the facade over routing rules, provider health and URL
// templates:
//
//	svc, err := proxy.NewService(ctx, proxy.Options{
//	    Store:       store.NewMemoryStore(),
//	    Credentials: credentials.NewEnvStore(""),
//	})
//	sel, err := svc.Select(ctx, "https://www.linkedin.com/in/x", proxy.SelectParams{
//	    Geo: &providers.GeoTarget{Country: "US"},
//	})
//	// ... issue the request through sel.ProxyURL ...
//	svc.ReportResult(sel.Provider, health.Result{Success: true, LatencyMs: 840})
//
// Selection steps:
//  1. refuse when no provider is enabled or the daily budget is spent
//  2. match the target hostname to one routing rule
//  3. filter enabled providers by country coverage and the rule's
//     preferred list, falling back to all enabled providers when the list
//     leaves none
//  4. rank by health; take the first healthy provider, else the least
//     unhealthy one (Selection.Degraded)
//  5. with failover disabled, use the first preferred provider even when
//     unhealthy
//  6. resolve credentials and render the URL through the provider template
//
// Configuration changes build a new immutable snapshot that replaces the
// old one atomically.
package proxy
