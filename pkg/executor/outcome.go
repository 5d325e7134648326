package executor

import (
	"net/http"
	"time"
)

// outcomeKind tags the result of one attempt. The retry loop branches on
// the kind, never on error text.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeHTTPError
	outcomeNetworkError
	outcomeSelectionError
	outcomeFatal
	outcomeCancelled
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSuccess:
		return "success"
	case outcomeHTTPError:
		return "http_error"
	case outcomeNetworkError:
		return "network_error"
	case outcomeSelectionError:
		return "selection_error"
	case outcomeFatal:
		return "fatal"
	case outcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// retryable reports whether another attempt may follow.
func (k outcomeKind) retryable() bool {
	return k == outcomeHTTPError || k == outcomeNetworkError
}

// outcome is what one attempt produced.
type outcome struct {
	kind     outcomeKind
	provider string
	status   int
	headers  http.Header
	body     []byte
	bytes    int64
	cost     float64
	latency  time.Duration
	err      error
}

func (o *outcome) errText() string {
	if o.err != nil {
		return o.err.Error()
	}
	return ""
}
