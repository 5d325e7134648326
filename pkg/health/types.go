package health

import "time"

// Result is the outcome of one proxied HTTP attempt, reported by the
// caller after the attempt completes.
type Result struct {
	// Success is true when the attempt produced a status below 400.
	Success bool `json:"success"`

	// LatencyMs is the wall-clock duration of the attempt.
	LatencyMs float64 `json:"latency_ms"`

	// BytesTransferred counts response bytes received (may be > 0 on failure).
	BytesTransferred int64 `json:"bytes_transferred"`

	// StatusCode is the HTTP status (0 when no response was received).
	StatusCode int `json:"status_code,omitempty"`

	// Err is the error text for failed attempts.
	Err string `json:"error,omitempty"`
}

// Stats is a read-only snapshot of a provider's health.
type Stats struct {
	Name string `json:"name"`

	// Score is the composite health score in [0, 1].
	Score float64 `json:"score"`

	// SuccessRate is the exponentially weighted success rate in [0, 1].
	SuccessRate float64 `json:"success_rate"`

	// AvgLatencyMs is the exponentially weighted latency (0 before the
	// first sample).
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	// TotalRequests and TotalBytes are monotonic counters.
	TotalRequests int64 `json:"total_requests"`
	TotalBytes    int64 `json:"total_bytes"`

	// Healthy is false when the score fell below the configured threshold
	// after enough samples were collected.
	Healthy bool `json:"healthy"`

	// Samples is the number of reports folded into the averages.
	Samples int64 `json:"samples"`

	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastUpdated         time.Time `json:"last_updated,omitempty"`
}

// neutralStats is the cold-start snapshot of a provider without reports.
func neutralStats(name string) Stats {
	return Stats{
		Name:        name,
		Score:       1,
		SuccessRate: 1,
		Healthy:     true,
	}
}

// Candidate is a provider considered for selection.
type Candidate struct {
	Name     string
	Priority int
	Weight   float64

	// MinSuccessRate is the routing rule threshold below which the
	// candidate counts as unhealthy (0 disables the check).
	MinSuccessRate float64
}

// Ranked is a candidate with the health snapshot used to order it.
type Ranked struct {
	Candidate
	Stats   Stats
	Healthy bool
}
