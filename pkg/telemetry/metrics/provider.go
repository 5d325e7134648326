package metrics

import (
	"machinaos/proxyrouter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks proxy provider health and attempts.
//
// Metrics:
//   - proxyrouter_provider_healthy: 1=healthy, 0=unhealthy
//   - proxyrouter_provider_score: composite health score
//   - proxyrouter_provider_in_flight: attempts currently running
//   - proxyrouter_provider_attempts_total: attempts by outcome
//   - proxyrouter_provider_attempt_duration_seconds: attempt latency
type ProviderMetrics struct {
	healthy  *prometheus.GaugeVec
	score    *prometheus.GaugeVec
	inFlight *prometheus.GaugeVec
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewProviderMetrics creates and registers provider metrics.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		healthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_healthy",
				Help:      "Provider health status (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),
		score: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_score",
				Help:      "Composite provider health score (0-1)",
			},
			[]string{"provider"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_in_flight",
				Help:      "Proxied attempts currently in flight",
			},
			[]string{"provider"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_attempts_total",
				Help:      "Total proxied attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_attempt_duration_seconds",
				Help:      "Proxied attempt latency in seconds",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(pm.healthy, pm.score, pm.inFlight, pm.attempts, pm.latency)
	return pm
}

// UpdateHealth sets the provider's health gauges.
func (pm *ProviderMetrics) UpdateHealth(provider string, healthy bool, score float64) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	pm.healthy.WithLabelValues(provider).Set(value)
	pm.score.WithLabelValues(provider).Set(score)
}

// RecordAttempt counts an attempt and observes its latency.
func (pm *ProviderMetrics) RecordAttempt(provider, outcome string, latencySeconds float64) {
	pm.attempts.WithLabelValues(provider, outcome).Inc()
	pm.latency.WithLabelValues(provider).Observe(latencySeconds)
}
