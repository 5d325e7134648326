package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"machinaos/proxyrouter/pkg/config"
	"machinaos/proxyrouter/pkg/credentials"
	"machinaos/proxyrouter/pkg/executor"
	"machinaos/proxyrouter/pkg/health"
	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/store"
	"machinaos/proxyrouter/pkg/telemetry/metrics"
	"machinaos/proxyrouter/pkg/telemetry/probe"
	"machinaos/proxyrouter/pkg/telemetry/tracing"
	"machinaos/proxyrouter/pkg/transport"
	"machinaos/proxyrouter/pkg/usage"
)

// app holds the wired runtime components of the proxy router.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	probes   *probe.Checker
	store    store.ConfigStore
	creds    credentials.Store
	cache    *credentials.CachedStore
	credFile *credentials.FileStore
	ledger   usage.Ledger
	budget   *budget.Tracker
	service  *proxy.Service
	client   *transport.HTTPClient
	executor *executor.Executor

	closers []func() error
}

// newApp wires every component from cfg. ledger may be nil, in which
// case usage is not recorded and the budget starts from zero.
func newApp(ctx context.Context, cfg *config.Config, ledger usage.Ledger, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, ledger: ledger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.Telemetry.Metrics.Enabled {
		a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}
	if a.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.tracer.Shutdown(ctx)
	})

	if a.store, err = openStore(cfg.Store); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)
	if err = store.Seed(ctx, a.store, cfg.Providers, cfg.Routing.Rules); err != nil {
		return nil, err
	}

	if err = a.openCredentials(cfg.Credentials); err != nil {
		return nil, err
	}

	if a.budget, err = newBudget(ctx, cfg.Budget, ledger); err != nil {
		return nil, err
	}

	a.service, err = proxy.NewService(ctx, proxy.Options{
		Store:       a.store,
		Credentials: a.creds,
		Health: health.NewScorer(health.Config{
			Window:          cfg.Health.Window,
			LatencyBaseline: cfg.Health.LatencyBaseline,
			MinHealthyScore: cfg.Health.MinHealthyScore,
			MinSamples:      cfg.Health.MinSamples,
			SuccessWeight:   cfg.Health.SuccessWeight,
			LatencyWeight:   cfg.Health.LatencyWeight,
			Seed:            cfg.Health.Seed,
		}),
		Budget:         a.budget,
		Metrics:        a.metrics,
		Logger:         logger,
		StickyCapacity: cfg.Request.StickyCapacity,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.service.Close(); return nil })

	a.client = transport.NewHTTPClient(transport.HTTPConfig{
		DefaultTimeout:      cfg.Request.DefaultTimeout,
		MaxBodyBytes:        cfg.Request.MaxBodyBytes,
		MaxIdleConns:        cfg.Request.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Request.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Request.IdleConnTimeout,
	})
	a.closers = append(a.closers, func() error { a.client.CloseIdleConnections(); return nil })

	a.executor, err = executor.New(executor.Options{
		Router:         a.service,
		Client:         a.client,
		Usage:          ledger,
		Metrics:        a.metrics,
		Tracer:         a.tracer,
		Logger:         logger,
		DefaultTimeout: cfg.Request.DefaultTimeout,
	})
	if err != nil {
		return nil, err
	}

	a.probes = probe.New(0)
	a.probes.Register("providers", probe.ServiceCheck(a.service.IsEnabled))
	a.probes.Register("config_store", probe.StoreCheck(a.store))
	a.probes.Register("daily_budget", probe.BudgetCheck(a.budget.Err))
	if ledger != nil {
		a.probes.Register("usage_ledger", probe.LedgerCheck(ledger))
	}
	return a, nil
}

// openCredentials chains the credentials file (if any) before the
// environment, behind an optional cache.
func (a *app) openCredentials(cfg config.CredentialsConfig) error {
	var chain []credentials.Store
	if cfg.File != "" {
		fs, err := credentials.NewFileStore(cfg.File)
		if err != nil {
			return err
		}
		a.credFile = fs
		chain = append(chain, fs)
	}
	chain = append(chain, credentials.NewEnvStore(cfg.EnvPrefix))
	a.creds = credentials.NewChainStore(chain...)

	if cfg.CacheTTL > 0 {
		cache, err := credentials.NewCachedStore(a.creds, cfg.CacheTTL, cfg.CacheSize)
		if err != nil {
			return err
		}
		a.cache = cache
		a.creds = cache
		a.closers = append(a.closers, func() error { cache.Close(); return nil })
		if a.credFile != nil {
			a.credFile.OnReload(cache.InvalidateAll)
		}
	}
	return nil
}

// applyConfig applies a reloaded configuration. Listener, storage and
// credential source settings need a restart; everything else takes
// effect immediately.
func (a *app) applyConfig(ctx context.Context, cfg *config.Config) error {
	if err := store.Seed(ctx, a.store, cfg.Providers, cfg.Routing.Rules); err != nil {
		return err
	}
	if err := a.service.Reload(ctx); err != nil {
		return err
	}
	a.budget.SetLimit(cfg.Budget.DailyLimit, cfg.Budget.AlertThreshold)
	if a.cache != nil {
		a.cache.InvalidateAll()
	}
	st := a.budget.Check()
	a.metrics.UpdateBudget(st.Used, st.Limit)
	a.cfg = cfg

	a.logger.Info("configuration reloaded",
		"providers", len(cfg.Providers),
		"rules", len(cfg.Routing.Rules),
		"daily_limit", cfg.Budget.DailyLimit,
	)
	return nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openStore(cfg config.StoreConfig) (store.ConfigStore, error) {
	switch cfg.Backend {
	case "sqlite":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(store.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	case "", "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func openLedger(cfg config.UsageConfig) (usage.Ledger, error) {
	switch cfg.Backend {
	case "sqlite":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return usage.OpenSQLiteLedger(cfg.SQLitePath)
	case "", "memory":
		return usage.NewMemoryLedger(), nil
	default:
		return nil, fmt.Errorf("unknown usage backend %q", cfg.Backend)
	}
}

// newBudget creates the daily tracker and restores today's spend from
// the ledger.
func newBudget(ctx context.Context, cfg config.BudgetConfig, ledger usage.Ledger) (*budget.Tracker, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("budget timezone: %w", err)
		}
		loc = l
	}
	tracker := budget.NewTracker(budget.Config{
		DailyLimit:     cfg.DailyLimit,
		AlertThreshold: cfg.AlertThreshold,
		Location:       loc,
	})
	if ledger != nil {
		spent, err := ledger.SpentSince(ctx, tracker.PeriodStart())
		if err != nil {
			return nil, fmt.Errorf("restoring today's spend: %w", err)
		}
		tracker.Seed(spent)
	}
	return tracker, nil
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
