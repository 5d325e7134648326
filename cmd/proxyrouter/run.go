package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"machinaos/proxyrouter/pkg/cli"
	"machinaos/proxyrouter/pkg/config"
	"machinaos/proxyrouter/pkg/server"
	"machinaos/proxyrouter/pkg/usage"
)

type runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the proxy router API server",
		Long: `Start the proxy router with the specified configuration.

The server exposes the proxy request API, provider and rule management,
status, usage and Prometheus metrics. Providers and rules from the config
file are seeded into the config store; with server.watch_config the file
is re-applied whenever it changes.

Examples:
  # Start with default config
  proxyrouter run

  # Start with custom config
  proxyrouter run --config /etc/proxyrouter/config.yaml

  # Override listen address
  proxyrouter run --listen 0.0.0.0:8090

  # Wire everything but do not serve
  proxyrouter run --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, g, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "wire all components, then exit without serving")
	return cmd
}

func runServer(cmd *cobra.Command, g *globalFlags, flags *runFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}
	if flags.listenAddress != "" {
		cfg.Server.ListenAddress = flags.listenAddress
	}
	if flags.logLevel != "" {
		cfg.Telemetry.Logging.Level = flags.logLevel
	}

	logger, err := g.newLogger(cmd, cfg)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	ledger, err := openLedger(cfg.Usage)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer ledger.Close()

	a, err := newApp(ctx, cfg, ledger, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.Close()

	srv, err := server.New(server.Options{
		Config:      cfg.Server,
		Service:     a.service,
		Executor:    a.executor,
		Usage:       ledger,
		Metrics:     a.metrics,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Probes:      a.probes,
		Tracer:      a.tracer,
		Logger:      logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	logger.Info("proxy router configured",
		"providers", len(cfg.Providers),
		"rules", len(cfg.Routing.Rules),
		"store", cfg.Store.Backend,
		"usage", cfg.Usage.Backend,
		"daily_limit", cfg.Budget.DailyLimit,
	)
	if flags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "dry run: configuration valid, all components wired")
		return nil
	}

	retention := usage.NewRetentionScheduler(ledger, usage.RetentionConfig{
		RetentionDays: cfg.Usage.RetentionDays,
		PruneSchedule: cfg.Usage.PruneSchedule,
	})
	if err := retention.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer retention.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	if a.credFile != nil && cfg.Credentials.WatchFile {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.credFile.Watch(ctx); err != nil {
				logger.Error("credentials watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Server.WatchConfig {
		watcher := config.NewWatcher(g.cfgFile, 0, func(next *config.Config) {
			if err := a.applyConfig(ctx, next); err != nil {
				logger.Error("failed to apply reloaded configuration", "error", err)
			}
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	err = srv.Start(ctx)
	stop()
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}
