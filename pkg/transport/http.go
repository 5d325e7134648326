package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultMaxBodyBytes caps response bodies read into memory.
const DefaultMaxBodyBytes = 32 << 20

// ErrBodyTooLarge is returned when a response exceeds the body cap.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// DefaultTimeout applies when a Request has no Timeout.
	// Default: 30s
	DefaultTimeout time.Duration

	// MaxBodyBytes caps the response body.
	// Default: 32 MiB
	MaxBodyBytes int64

	// MaxIdleConns is the connection pool size.
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost bounds idle connections per proxy gateway.
	// Default: 10
	MaxIdleConnsPerHost int

	// IdleConnTimeout closes idle pooled connections.
	// Default: 90s
	IdleConnTimeout time.Duration
}

type proxyURLKey struct{}

// HTTPClient sends requests over a single pooled http.Transport. The
// proxy for each request travels in its context, so connections to the
// same gateway with the same credentials are reused.
type HTTPClient struct {
	client *http.Client
	config HTTPConfig
	logger *slog.Logger
}

// NewHTTPClient creates a client with connection pooling.
func NewHTTPClient(config HTTPConfig) *HTTPClient {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost <= 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout <= 0 {
		config.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy:               proxyFromContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			// Redirects are followed through the same proxy.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
		config: config,
		logger: slog.Default().With("component", "transport.http"),
	}
}

func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyURLKey{}).(*url.URL); ok {
		return u, nil
	}
	return nil, nil
}

// Do sends req and reads the full response body. Non-2xx statuses are
// not errors; the caller decides what counts as failure.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, &Error{Kind: KindInvalid, Err: errors.New("nil request")}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if req.ProxyURL != "" {
		proxyURL, err := url.Parse(req.ProxyURL)
		if err != nil || proxyURL.Host == "" {
			// Never echo the raw proxy URL; it carries credentials.
			return nil, &Error{Kind: KindInvalid, Err: errors.New("malformed proxy URL")}
		}
		attemptCtx = context.WithValue(attemptCtx, proxyURLKey{}, proxyURL)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return nil, &Error{Kind: KindInvalid, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	sent := int64(len(req.Body))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		kind := classify(ctx, err)
		c.logger.Debug("request failed", "method", method, "kind", kind, "error", err)
		// A request that never connected sent nothing.
		if kind == KindConnect {
			sent = 0
		}
		return nil, &Error{Kind: kind, Bytes: sent, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	received := int64(len(data))
	if err != nil {
		return nil, &Error{Kind: classify(ctx, err), Bytes: sent + received, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if received > c.config.MaxBodyBytes {
		return nil, &Error{Kind: KindProtocol, Bytes: sent + received, Err: fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, c.config.MaxBodyBytes)}
	}

	return &Response{
		StatusCode:       resp.StatusCode,
		Headers:          resp.Header,
		Body:             data,
		BytesTransferred: sent + received,
	}, nil
}

// CloseIdleConnections closes pooled connections.
func (c *HTTPClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}
