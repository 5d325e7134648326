package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"machinaos/proxyrouter/pkg/health"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/routing"
	"machinaos/proxyrouter/pkg/telemetry/logging"
	"machinaos/proxyrouter/pkg/telemetry/metrics"
	"machinaos/proxyrouter/pkg/telemetry/tracing"
	"machinaos/proxyrouter/pkg/transport"
	"machinaos/proxyrouter/pkg/usage"
)

// DefaultTimeout bounds an attempt when neither the request nor the
// executor sets one.
const DefaultTimeout = 30 * time.Second

// Router is the part of proxy.Service the executor depends on.
type Router interface {
	Select(ctx context.Context, target string, params proxy.SelectParams) (*proxy.Selection, error)
	ReportResult(name string, r health.Result)
	Acquire(ctx context.Context, provider string) (func(), error)
	Cost(provider string, bytes int64) float64
	RecordSpend(cost float64)
}

// Options configures an Executor. Router and Client are required.
type Options struct {
	Router         Router
	Client         transport.Client
	Usage          usage.Recorder
	Metrics        *metrics.Collector
	Tracer         *tracing.Tracer
	Logger         *slog.Logger
	DefaultTimeout time.Duration
}

// Executor runs logical proxied requests with retry and failover.
type Executor struct {
	router         Router
	client         transport.Client
	usage          usage.Recorder
	metrics        *metrics.Collector
	tracer         *tracing.Tracer
	logger         *slog.Logger
	defaultTimeout time.Duration
	now            func() time.Time
}

// New creates an executor.
func New(opts Options) (*Executor, error) {
	if opts.Router == nil {
		return nil, errors.New("executor: router is required")
	}
	if opts.Client == nil {
		return nil, errors.New("executor: HTTP client is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	return &Executor{
		router:         opts.Router,
		client:         opts.Client,
		usage:          opts.Usage,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		logger:         opts.Logger.With("component", "executor"),
		defaultTimeout: opts.DefaultTimeout,
		now:            time.Now,
	}, nil
}

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Execute runs req through the SELECT → ATTEMPT → SUCCESS | RETRY |
// EXHAUSTED loop.
//
// Configuration errors fail before any attempt. HTTP statuses >= 400 and
// network errors are retried while attempt <= max_retries and the rule
// allows failover; each retry re-selects with the providers tried so far
// avoided. Once a provider has been tried, a re-selection that finds no
// provider counts as a failed attempt against the same limit. Cancelling
// ctx aborts the in-flight attempt and skips retries.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	start := e.now()
	logger := logging.FromContext(ctx, e.logger)

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	host, err := validate(method, req)
	if err != nil {
		res := &Result{URL: req.URL, Error: err.Error()}
		e.finish(logger, nil, res, outcomeFatal, start)
		return res
	}
	req.Method = method

	ctx, span := e.tracer.Start(ctx, tracing.SpanProxyRequest,
		trace.WithAttributes(tracing.RequestAttributes(method, host, req.SessionID, req.WorkflowID)...))

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	stickyID := req.StickySessionID
	if stickyID == "" {
		stickyID = req.SessionID
	}

	var (
		tried      []string
		last       *outcome
		totalBytes int64
		totalCost  float64

		// retry policy of the most recent selection
		maxRetries int
		failover   bool
	)

	for attempt := 1; ; attempt++ {
		// SELECT_PROXY
		sel, err := e.router.Select(ctx, req.URL, proxy.SelectParams{
			Geo:              req.Geo,
			SessionID:        stickyID,
			ProviderOverride: req.ProviderOverride,
			Avoid:            tried,
		})
		if err != nil {
			made := attempt - 1
			if last != nil && errors.Is(err, proxy.ErrNoProviderAvailable) {
				made = attempt
				if failover && attempt <= maxRetries {
					logger.Info("proxy selection failed, retrying",
						"attempt", attempt,
						"max_retries", maxRetries,
						"error", err,
					)
					continue
				}
			}
			res := e.selectionFailure(req, made, last, err)
			res.Bytes, res.Cost = totalBytes, totalCost
			e.finish(logger, span, res, outcomeSelectionError, start)
			return res
		}

		maxRetries, failover = sel.Rule.MaxRetries, sel.Rule.Failover
		if req.MaxRetriesOverride != nil {
			maxRetries = *req.MaxRetriesOverride
		}

		// ATTEMPT
		out := e.attempt(ctx, req, sel, host, attempt, timeout)
		totalBytes += out.bytes
		totalCost += out.cost
		last = out

		switch {
		case out.kind == outcomeSuccess:
			res := e.result(req, out, attempt)
			res.Success = true
			res.Bytes, res.Cost = totalBytes, totalCost
			e.finish(logger, span, res, out.kind, start)
			return res

		case out.kind == outcomeCancelled:
			res := e.result(req, out, attempt)
			res.Error = "request cancelled"
			res.Bytes, res.Cost = totalBytes, totalCost
			e.finish(logger, span, res, out.kind, start)
			return res

		case out.kind == outcomeFatal:
			res := e.result(req, out, attempt)
			res.Error = out.errText()
			res.Bytes, res.Cost = totalBytes, totalCost
			e.finish(logger, span, res, out.kind, start)
			return res

		case out.kind.retryable() && attempt <= maxRetries && failover:
			// RETRY
			logger.Info("proxied attempt failed, retrying",
				"attempt", attempt,
				"max_retries", maxRetries,
				"provider", out.provider,
				"outcome", out.kind.String(),
				"error", out.errText(),
			)
			tried = append(tried, out.provider)

		default:
			// EXHAUSTED
			res := e.result(req, out, attempt)
			res.Error = fmt.Sprintf("All %d attempts failed. Last error: %s", attempt, out.errText())
			res.Bytes, res.Cost = totalBytes, totalCost
			e.finish(logger, span, res, out.kind, start)
			return res
		}
	}
}

// attempt performs one HTTP exchange through the selected proxy and
// reports its outcome to health, usage and budget.
func (e *Executor) attempt(ctx context.Context, req Request, sel *proxy.Selection, host string, attempt int, timeout time.Duration) *outcome {
	out := &outcome{provider: sel.Provider}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attemptCtx, span := e.tracer.Start(attemptCtx, tracing.SpanProxyAttempt,
		trace.WithAttributes(tracing.SelectionAttributes(sel.Provider, sel.Rule.ID, sel.Country, sel.SessionID != "", attempt)...))
	defer func() {
		tracing.EndWithMessage(span, out.kind != outcomeSuccess, out.errText(),
			tracing.OutcomeAttributes(out.kind.String(), out.status, out.bytes, out.cost)...)
	}()

	release, err := e.router.Acquire(attemptCtx, sel.Provider)
	if err != nil {
		if ctx.Err() != nil {
			out.kind, out.err = outcomeCancelled, ctx.Err()
			return out
		}
		// Waiting for a slot is not the provider failing.
		out.kind = outcomeNetworkError
		out.err = fmt.Errorf("timed out waiting for a %s connection slot", sel.Provider)
		return out
	}
	defer release()

	e.metrics.AttemptStarted(sel.Provider)
	started := e.now()
	resp, err := e.client.Do(attemptCtx, &transport.Request{
		Method:   req.Method,
		URL:      req.URL,
		Headers:  req.Headers,
		Body:     req.Body,
		ProxyURL: sel.ProxyURL,
		Timeout:  timeout,
	})
	out.latency = e.now().Sub(started)

	var terr *transport.Error
	switch {
	case ctx.Err() != nil:
		out.kind, out.err = outcomeCancelled, ctx.Err()
		if errors.As(err, &terr) {
			out.bytes = terr.Bytes
		} else if resp != nil {
			out.bytes = resp.BytesTransferred
		}
	case err != nil:
		out.kind = outcomeNetworkError
		if errors.As(err, &terr) {
			out.bytes = terr.Bytes
			if terr.Kind == transport.KindInvalid {
				out.kind = outcomeFatal
			}
		}
		out.err = &providers.ProviderError{Provider: sel.Provider, Message: err.Error(), Cause: err}
	default:
		out.status = resp.StatusCode
		out.headers = resp.Headers
		out.body = resp.Body
		out.bytes = resp.BytesTransferred
		if resp.StatusCode >= 400 {
			out.kind = outcomeHTTPError
			out.err = &providers.ProviderError{
				Provider:   sel.Provider,
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
			}
		} else {
			out.kind = outcomeSuccess
		}
	}

	// Cancellation and malformed requests say nothing about the provider.
	if out.kind != outcomeCancelled && out.kind != outcomeFatal {
		e.router.ReportResult(sel.Provider, health.Result{
			Success:          out.kind == outcomeSuccess,
			LatencyMs:        float64(out.latency) / float64(time.Millisecond),
			BytesTransferred: out.bytes,
			StatusCode:       out.status,
			Err:              out.errText(),
		})
	}

	if out.bytes > 0 {
		out.cost = e.router.Cost(sel.Provider, out.bytes)
		e.router.RecordSpend(out.cost)
		e.recordUsage(ctx, req, out, host, attempt)
	}

	e.metrics.RecordAttempt(sel.Provider, out.kind.String(), out.latency, out.bytes, out.cost)
	return out
}

func (e *Executor) recordUsage(ctx context.Context, req Request, out *outcome, host string, attempt int) {
	if e.usage == nil {
		return
	}
	rec := usage.Record{
		SessionID:        req.SessionID,
		NodeID:           req.NodeID,
		WorkflowID:       req.WorkflowID,
		Provider:         out.provider,
		BytesTransferred: out.bytes,
		Cost:             out.cost,
		Attempt:          attempt,
		StatusCode:       out.status,
		Success:          out.kind == outcomeSuccess,
		TargetHost:       host,
	}
	// Spend happened even if the caller went away.
	if err := e.usage.AppendUsageRecord(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Error("failed to record proxy usage",
			"provider", out.provider,
			"bytes", out.bytes,
			"error", err,
		)
	}
}

// selectionFailure ends the request when no proxy could be selected.
// made is the number of attempts counted, last the most recent attempt
// that reached a provider.
func (e *Executor) selectionFailure(req Request, made int, last *outcome, err error) *Result {
	if last == nil {
		return &Result{URL: req.URL, Attempt: made, Error: err.Error()}
	}
	res := e.result(req, last, made)
	res.Error = fmt.Sprintf("All %d attempts failed. Last error: %s", made, err.Error())
	return res
}

// result builds a Result from the attempt's response fields.
func (e *Executor) result(req Request, out *outcome, attempt int) *Result {
	res := &Result{
		Status:    out.status,
		URL:       req.URL,
		Provider:  out.provider,
		LatencyMs: float64(out.latency) / float64(time.Millisecond),
		Attempt:   attempt,
	}
	if len(out.headers) > 0 {
		res.Headers = make(map[string]string, len(out.headers))
		for k := range out.headers {
			res.Headers[k] = out.headers.Get(k)
		}
	}
	if len(out.body) > 0 {
		res.Data = decodeBody(out.body)
	}
	return res
}

func (e *Executor) finish(logger *slog.Logger, span trace.Span, res *Result, kind outcomeKind, start time.Time) {
	e.metrics.RecordRequest(kind.String(), res.Attempt, e.now().Sub(start))
	if span != nil {
		attrs := tracing.OutcomeAttributes(kind.String(), res.Status, res.Bytes, res.Cost)
		attrs = append(attrs, tracing.AttrAttempts.Int(res.Attempt))
		if res.Provider != "" {
			attrs = append(attrs, tracing.AttrProvider.String(res.Provider))
		}
		tracing.EndWithMessage(span, !res.Success, res.Error, attrs...)
	}

	attrs := []any{
		"provider", res.Provider,
		"status", res.Status,
		"attempt", res.Attempt,
		"bytes", res.Bytes,
		"cost", res.Cost,
	}
	if res.Success {
		logger.Info("proxied request completed", attrs...)
		return
	}
	logger.Warn("proxied request failed", append(attrs, "outcome", kind.String(), "error", res.Error)...)
}

// validate rejects requests that no retry could fix.
func validate(method string, req Request) (string, error) {
	if strings.TrimSpace(req.URL) == "" {
		return "", providers.NewConfigError("", "url", "url is required")
	}
	host, err := routing.Hostname(req.URL)
	if err != nil {
		return "", err
	}
	if u, err := url.Parse(strings.TrimSpace(req.URL)); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", providers.NewConfigError("", "url", fmt.Sprintf("target URL %q must use http or https", req.URL))
	}
	if !allowedMethods[method] {
		return "", providers.NewConfigError("", "method", fmt.Sprintf("unsupported HTTP method %q", method))
	}
	if req.MaxRetriesOverride != nil && *req.MaxRetriesOverride < 0 {
		return "", providers.NewConfigError("", "max_retries", "max_retries must be non-negative")
	}
	return host, nil
}

// decodeBody returns parsed JSON when the body is valid JSON, else text.
func decodeBody(body []byte) any {
	if json.Valid(body) {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
	}
	return string(body)
}
