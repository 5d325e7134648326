package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	// KindTimeout means the attempt exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindConnect means the proxy or target could not be reached.
	KindConnect ErrorKind = "connect"

	// KindCanceled means the caller cancelled the request.
	KindCanceled ErrorKind = "canceled"

	// KindProtocol covers malformed responses, oversized bodies and
	// other failures after a connection was made.
	KindProtocol ErrorKind = "protocol"

	// KindInvalid means the request itself was malformed. It is never
	// retried.
	KindInvalid ErrorKind = "invalid_request"
)

// Error is returned by HTTPClient for failed exchanges.
type Error struct {
	Kind ErrorKind

	// Bytes is the number of bytes transferred before the failure.
	Bytes int64

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether a retry through another proxy might succeed.
func (e *Error) Temporary() bool {
	return e.Kind != KindInvalid && e.Kind != KindCanceled
}

// classify maps an error from http.Client.Do or a body read to a Kind.
// ctx is the caller's context; a deadline set by the client itself shows
// up as a timeout even when ctx is still live.
func classify(ctx context.Context, err error) ErrorKind {
	if errors.Is(ctx.Err(), context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "proxyconnect") {
		return KindConnect
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnect
	}
	return KindProtocol
}
