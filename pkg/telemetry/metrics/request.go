package metrics

import (
	"time"

	"machinaos/proxyrouter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks logical proxied requests and provider selection.
//
// Metrics:
//   - proxyrouter_requests_total: logical requests by result
//   - proxyrouter_request_duration_seconds: end-to-end duration including retries
//   - proxyrouter_request_attempts: attempts per logical request
//   - proxyrouter_selections_total: provider selections by rule and reason
//   - proxyrouter_selection_failures_total: selections that found no provider
type RequestMetrics struct {
	requests          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	attempts          prometheus.Histogram
	selections        *prometheus.CounterVec
	selectionFailures *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total logical proxied requests by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Logical request duration in seconds, retries included",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"result"},
		),
		attempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_attempts",
				Help:      "Attempts made per logical request",
				Buckets:   []float64{1, 2, 3, 4, 5, 8},
			},
		),
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "selections_total",
				Help:      "Provider selections by routing rule, provider and reason",
			},
			[]string{"rule", "provider", "reason"},
		),
		selectionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "selection_failures_total",
				Help:      "Provider selections that returned no provider",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(rm.requests, rm.duration, rm.attempts, rm.selections, rm.selectionFailures)
	return rm
}

// RecordRequest records a finished logical request.
func (rm *RequestMetrics) RecordRequest(result string, attempts int, duration time.Duration) {
	rm.requests.WithLabelValues(result).Inc()
	rm.duration.WithLabelValues(result).Observe(duration.Seconds())
	rm.attempts.Observe(float64(attempts))
}
