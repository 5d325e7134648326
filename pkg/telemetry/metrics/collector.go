package metrics

import (
	"sync"
	"time"

	"machinaos/proxyrouter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns all Prometheus metrics of the proxy router. It registers
// every metric family on its own registry and gives the routing service
// and the request executor one recording interface.
//
// # Metric Families
//
// Provider metrics, labelled by provider:
//   - provider_healthy, provider_score: the scorer's latest view
//   - provider_in_flight: attempts currently holding a connection slot
//   - provider_attempts_total{outcome}, provider_attempt_duration_seconds
//
// Request and selection metrics:
//   - requests_total{result}, request_duration_seconds, request_attempts
//   - selections_total{rule, provider, reason}
//   - selection_failures_total{reason}
//
// Spend metrics:
//   - bytes_total{provider}, cost_usd_total{provider}
//   - budget_used_usd, budget_limit_usd
//
// All names carry the configured namespace, e.g. proxyrouter_requests_total.
//
// # Cardinality
//
// Provider names come from configuration and stay bounded. Rule IDs can be
// created at runtime through the admin API, so at most 500 distinct rule
// IDs are kept as label values; later ones are recorded as "other".
//
// # Nil Safety
//
// Every method is safe on a nil *Collector and does nothing when metrics
// are disabled:
//
//	var c *metrics.Collector
//	c.RecordAttempt("brightdata", "success", 120*time.Millisecond, 4096, 0.00002) // no-op
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	providerMetrics *ProviderMetrics
	requestMetrics  *RequestMetrics
	costMetrics     *CostMetrics

	// ruleLimiter caps distinct rule ID label values
	ruleLimiter *CardinalityLimiter
}

// NewCollector creates a collector registering into registry. A nil
// registry gets a fresh one.
//
// Example:
//
//	collector := metrics.NewCollector(&config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "proxyrouter",
//	}, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "proxyrouter"
	}
	if len(cfg.LatencyBuckets) == 0 {
		// Residential proxies are slow; 50ms to 60s.
		cfg.LatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	}

	return &Collector{
		config:          cfg,
		registry:        registry,
		providerMetrics: NewProviderMetrics(cfg, registry),
		requestMetrics:  NewRequestMetrics(cfg, registry),
		costMetrics:     NewCostMetrics(cfg, registry),
		ruleLimiter:     NewCardinalityLimiter(500),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// UpdateProviderHealth publishes a provider's health flag and score.
func (c *Collector) UpdateProviderHealth(provider string, healthy bool, score float64) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.UpdateHealth(provider, healthy, score)
}

// AttemptStarted increments the provider's in-flight gauge.
func (c *Collector) AttemptStarted(provider string) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.inFlight.WithLabelValues(provider).Inc()
}

// RecordAttempt records a finished attempt.
//
// Parameters:
//   - provider: proxy provider name
//   - outcome: "success", "http_error", "network_error", "cancelled"
//   - latency: wall-clock attempt duration
//   - bytes: bytes transferred, also on failure
//   - cost: USD charged for the bytes
func (c *Collector) RecordAttempt(provider, outcome string, latency time.Duration, bytes int64, cost float64) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.inFlight.WithLabelValues(provider).Dec()
	c.providerMetrics.RecordAttempt(provider, outcome, latency.Seconds())
	c.costMetrics.RecordUsage(provider, bytes, cost)
}

// RecordSelection counts a provider selection.
//
// Parameters:
//   - ruleID: matched routing rule, folded into "other" past the label cap
//   - provider: selected proxy provider
//   - reason: "healthy", "degraded", "override", "pinned" or "sticky"
func (c *Collector) RecordSelection(ruleID, provider, reason string) {
	if !c.enabled() {
		return
	}
	if !c.ruleLimiter.Allow(ruleID) {
		ruleID = "other"
	}
	c.requestMetrics.selections.WithLabelValues(ruleID, provider, reason).Inc()
}

// RecordSelectionFailure counts a selection that produced no provider.
//
// reason is one of "no_provider", "budget", "config".
func (c *Collector) RecordSelectionFailure(reason string) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.selectionFailures.WithLabelValues(reason).Inc()
}

// RecordRequest records a finished logical request.
func (c *Collector) RecordRequest(result string, attempts int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordRequest(result, attempts, duration)
}

// UpdateBudget publishes daily spend and limit.
func (c *Collector) UpdateBudget(used, limit float64) {
	if !c.enabled() {
		return
	}
	c.costMetrics.budgetUsed.Set(used)
	c.costMetrics.budgetLimit.Set(limit)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CardinalityLimiter caps the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or still fits.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of tracked values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
