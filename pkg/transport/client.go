package transport

import (
	"context"
	"net/http"
	"time"
)

// Request is a single outbound HTTP request routed through a proxy.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// ProxyURL is the full proxy URL including credentials. Empty means
	// a direct connection.
	ProxyURL string

	// Timeout bounds the whole exchange. Zero uses the client default.
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	// BytesTransferred counts request body bytes sent plus response body
	// bytes received.
	BytesTransferred int64
}

// Client issues requests through a proxy.
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f.
func (f ClientFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
