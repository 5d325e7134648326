package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"machinaos/proxyrouter/pkg/config"
	"machinaos/proxyrouter/pkg/executor"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/telemetry/metrics"
	"machinaos/proxyrouter/pkg/telemetry/probe"
	"machinaos/proxyrouter/pkg/telemetry/tracing"
	"machinaos/proxyrouter/pkg/usage"
)

// Options wires a Server. Service and Executor are required; a nil Usage
// disables /v1/proxy/usage, a nil Metrics disables the scrape endpoint
// and nil Probes disables /livez and /readyz.
type Options struct {
	Config   config.ServerConfig
	Service  *proxy.Service
	Executor *executor.Executor
	Usage    usage.Ledger
	Metrics  *metrics.Collector
	Probes   *probe.Checker
	Tracer   *tracing.Tracer

	// MetricsPath is where Prometheus metrics are served. Default: /metrics
	MetricsPath string

	Logger *slog.Logger
}

// Server is the HTTP API in front of the proxy service.
type Server struct {
	config      config.ServerConfig
	service     *proxy.Service
	executor    *executor.Executor
	usage       usage.Ledger
	metrics     *metrics.Collector
	metricsPath string
	probes      *probe.Checker
	tracer      *tracing.Tracer
	logger      *slog.Logger

	handler    http.Handler
	httpServer *http.Server

	mu        sync.Mutex
	isRunning bool
	addr      net.Addr
}

// New creates a server. It does not listen until Start is called.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("server: proxy service is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("server: executor is required")
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		config:      opts.Config,
		service:     opts.Service,
		executor:    opts.Executor,
		usage:       opts.Usage,
		metrics:     opts.Metrics,
		metricsPath: opts.MetricsPath,
		probes:      opts.Probes,
		tracer:      opts.Tracer,
		logger:      opts.Logger.With("component", "server"),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the API handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully within ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listening on %s: %w", s.config.ListenAddress, err)
	}
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting proxy router API", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	shutdownCtx := ctx
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	s.isRunning = false
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("proxy router API stopped")
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
