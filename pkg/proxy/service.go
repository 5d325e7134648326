package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"machinaos/proxyrouter/pkg/credentials"
	"machinaos/proxyrouter/pkg/health"
	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/limits/concurrency"
	"machinaos/proxyrouter/pkg/pricing"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
	"machinaos/proxyrouter/pkg/store"
	"machinaos/proxyrouter/pkg/telemetry/metrics"
)

// Options wires a Service to its collaborators. Store is required; nil
// Health and Pricing get defaults, nil Budget and Metrics disable those
// features.
type Options struct {
	Store       store.ConfigStore
	Credentials credentials.Store
	Health      *health.Scorer
	Pricing     *pricing.Calculator
	Budget      *budget.Tracker
	Metrics     *metrics.Collector
	Logger      *slog.Logger

	// NewSessionID generates sticky session ids. Default:
	// providers.RandomSessionID
	NewSessionID func() string

	// StickyCapacity bounds remembered sticky bindings. Default: 10000
	StickyCapacity int
}

// Service combines routing, health scoring and URL templating. It is the
// single entry point other components use to pick a proxy.
//
// Configuration lives in an immutable snapshot swapped atomically on every
// change; selections never block on writers.
type Service struct {
	store        store.ConfigStore
	creds        credentials.Store
	health       *health.Scorer
	pricing      *pricing.Calculator
	budget       *budget.Tracker
	metrics      *metrics.Collector
	logger       *slog.Logger
	newSessionID func() string

	snap    atomic.Pointer[snapshot]
	writeMu sync.Mutex

	limits  *concurrency.Set
	sticky  *stickyBindings
	matches *routing.AtomicMatchStats
}

// NewService creates a service and loads the initial configuration from
// the store.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("proxy service: config store is required")
	}
	if opts.Health == nil {
		opts.Health = health.NewScorer(health.Config{})
	}
	if opts.Pricing == nil {
		opts.Pricing = pricing.NewCalculator(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = providers.RandomSessionID
	}

	sticky, err := newStickyBindings(opts.StickyCapacity)
	if err != nil {
		return nil, fmt.Errorf("proxy service: sticky cache: %w", err)
	}

	s := &Service{
		store:        opts.Store,
		creds:        opts.Credentials,
		health:       opts.Health,
		pricing:      opts.Pricing,
		budget:       opts.Budget,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "proxy.service"),
		newSessionID: opts.NewSessionID,
		limits:       concurrency.NewSet(),
		sticky:       sticky,
		matches:      routing.NewAtomicMatchStats(),
	}
	s.snap.Store(emptySnapshot())

	if err := s.Reload(ctx); err != nil {
		sticky.close()
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the snapshot from the config store. On error the
// current snapshot stays in place.
func (s *Service) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *Service) reloadLocked(ctx context.Context) error {
	provs, err := s.store.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("loading providers: %w", err)
	}
	rules, err := s.store.ListRoutingRules(ctx)
	if err != nil {
		return fmt.Errorf("loading routing rules: %w", err)
	}

	snap, err := buildSnapshot(provs, rules)
	if err != nil {
		return err
	}

	rates := make(map[string]float64, len(snap.ordered))
	for _, e := range snap.ordered {
		rates[e.config.Name] = e.config.CostPerGB
		s.limits.Configure(e.config.Name, e.config.MaxConcurrent)
	}
	s.pricing.UpdateRates(rates)

	old := s.snap.Swap(snap)
	if old != nil && !reflect.DeepEqual(old.table.Rules(), snap.table.Rules()) {
		// Bindings are keyed by rule ID.
		s.sticky.clear()
	}

	s.logger.Info("proxy configuration loaded",
		"providers", len(snap.ordered),
		"rules", snap.table.Len(),
		"enabled", snap.enabled,
	)
	return nil
}

// IsEnabled reports whether at least one provider is enabled.
func (s *Service) IsEnabled() bool {
	return s.snap.Load().enabled
}

// ReportResult folds an attempt outcome into the provider's health.
// Unknown providers are ignored.
func (s *Service) ReportResult(name string, r health.Result) {
	if _, ok := s.snap.Load().providers[name]; !ok {
		s.logger.Warn("result reported for unknown provider", "provider", name)
		return
	}
	stats := s.health.Report(name, r)
	s.metrics.UpdateProviderHealth(name, stats.Healthy, stats.Score)

	if !r.Success {
		s.logger.Debug("provider attempt failed",
			"provider", name,
			"status", r.StatusCode,
			"score", stats.Score,
			"healthy", stats.Healthy,
			"error", r.Err,
		)
	}
}

// Acquire waits for a concurrency slot on the provider. The returned
// release func must be called exactly once.
func (s *Service) Acquire(ctx context.Context, provider string) (func(), error) {
	l := s.limits.Get(provider)
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(l.Release) }, nil
}

// Cost prices bytes transferred through provider.
func (s *Service) Cost(provider string, bytes int64) float64 {
	return s.pricing.Cost(provider, bytes)
}

// RecordSpend adds cost to the daily budget.
func (s *Service) RecordSpend(cost float64) {
	if s.budget == nil || cost <= 0 {
		return
	}
	s.budget.Add(cost)
	st := s.budget.Check()
	s.metrics.UpdateBudget(st.Used, st.Limit)
	if st.AlertTriggered {
		s.logger.Warn("proxy budget alert threshold reached",
			"used", st.Used,
			"limit", st.Limit,
			"percentage", st.Percentage,
		)
	}
}

// Close releases background resources.
func (s *Service) Close() {
	s.sticky.close()
}
