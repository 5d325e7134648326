// Package probe serves liveness and readiness endpoints.
//
// Liveness only says the process is up. Readiness runs registered checks
// concurrently, each under a timeout, and answers 503 when any fails:
//
//	checker := probe.New(2 * time.Second)
//	checker.Register("providers", probe.ServiceCheck(service.IsEnabled))
//	checker.Register("usage_ledger", probe.LedgerCheck(ledger))
//	mux.HandleFunc("GET /readyz", checker.ReadinessHandler())
//
// A readiness report looks like:
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "providers":    {"status": "ok", "duration_ms": 0.01},
//	        "daily_budget": {"status": "unhealthy", "message": "daily proxy budget of $25.00 exceeded"}
//	    },
//	    "timestamp": "2026-03-02T10:30:00Z"
//	}
package probe
