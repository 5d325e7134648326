// Package metrics provides Prometheus metrics for the proxy router.
//
// The Collector registers provider, request and cost metrics on its own
// registry and exposes them through Handler:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle("/metrics", collector.Handler())
//
//	collector.AttemptStarted("brightdata")
//	collector.RecordAttempt("brightdata", "success", 850*time.Millisecond, 1<<20, 0.0082)
//
// Rule ID labels are capped by a CardinalityLimiter; overflow is folded
// into "other".
package metrics
