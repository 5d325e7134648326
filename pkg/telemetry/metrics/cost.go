package metrics

import (
	"machinaos/proxyrouter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CostMetrics tracks bandwidth and spend.
//
// Metrics:
//   - proxyrouter_bytes_total: bytes transferred by provider
//   - proxyrouter_cost_usd_total: USD spent by provider
//   - proxyrouter_budget_used_usd: spend in the current budget day
//   - proxyrouter_budget_limit_usd: configured daily limit (0 = none)
type CostMetrics struct {
	bytes       *prometheus.CounterVec
	cost        *prometheus.CounterVec
	budgetUsed  prometheus.Gauge
	budgetLimit prometheus.Gauge
}

// NewCostMetrics creates and registers cost metrics.
func NewCostMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bytes_total",
				Help:      "Bytes transferred through each provider",
			},
			[]string{"provider"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_usd_total",
				Help:      "Total proxy spend in USD by provider",
			},
			[]string{"provider"},
		),
		budgetUsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_used_usd",
				Help:      "Proxy spend in the current budget day",
			},
		),
		budgetLimit: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_limit_usd",
				Help:      "Daily proxy budget in USD (0 = unlimited)",
			},
		),
	}

	registry.MustRegister(cm.bytes, cm.cost, cm.budgetUsed, cm.budgetLimit)
	return cm
}

// RecordUsage adds transferred bytes and their cost.
func (cm *CostMetrics) RecordUsage(provider string, bytes int64, cost float64) {
	if bytes > 0 {
		cm.bytes.WithLabelValues(provider).Add(float64(bytes))
	}
	if cost > 0 {
		cm.cost.WithLabelValues(provider).Add(cost)
	}
}
