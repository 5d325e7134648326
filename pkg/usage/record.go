package usage

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"machinaos/proxyrouter/pkg/pricing"
)

// Record is one billed proxy attempt. Records are append-only.
type Record struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id,omitempty"`
	NodeID           string    `json:"node_id,omitempty"`
	WorkflowID       string    `json:"workflow_id,omitempty"`
	Provider         string    `json:"provider"`
	BytesTransferred int64     `json:"bytes_transferred"`
	Cost             float64   `json:"cost"`
	Attempt          int       `json:"attempt"`
	StatusCode       int       `json:"status_code,omitempty"`
	Success          bool      `json:"success"`
	TargetHost       string    `json:"target_host,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Recorder appends usage records.
type Recorder interface {
	AppendUsageRecord(ctx context.Context, rec Record) error
}

// Ledger is a queryable Recorder.
type Ledger interface {
	Recorder

	// Query returns matching records, newest first.
	Query(ctx context.Context, f Filter) ([]Record, error)

	// Summarize aggregates matching records by provider.
	Summarize(ctx context.Context, f Filter) (Summary, error)

	// SpentSince returns the total cost of records created at or after t.
	SpentSince(ctx context.Context, t time.Time) (float64, error)

	// DeleteBefore removes records created before t and returns how many
	// were deleted.
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)

	Close() error
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	SessionID  string
	WorkflowID string
	Provider   string
	Since      time.Time
	Until      time.Time
	// Limit caps Query results. Zero means no limit.
	Limit int
}

func (f Filter) matches(r *Record) bool {
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.WorkflowID != "" && r.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// ProviderUsage aggregates usage for one provider.
type ProviderUsage struct {
	Provider  string  `json:"provider"`
	Requests  int64   `json:"requests"`
	Successes int64   `json:"successes"`
	Bytes     int64   `json:"bytes"`
	Cost      float64 `json:"cost"`
}

// Summary aggregates usage across providers.
type Summary struct {
	Providers     []ProviderUsage `json:"providers"`
	TotalRequests int64           `json:"total_requests"`
	TotalBytes    int64           `json:"total_bytes"`
	TotalCost     float64         `json:"total_cost"`
}

// summarize builds a Summary sorted by provider name. Costs are rounded
// after summing so repeated small charges do not accumulate error.
func summarize(rows []ProviderUsage) Summary {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Provider < rows[j].Provider })

	s := Summary{Providers: rows}
	for i := range s.Providers {
		s.Providers[i].Cost = pricing.Round8(s.Providers[i].Cost)
		s.TotalRequests += s.Providers[i].Requests
		s.TotalBytes += s.Providers[i].Bytes
		s.TotalCost += s.Providers[i].Cost
	}
	s.TotalCost = pricing.Round8(s.TotalCost)
	if s.Providers == nil {
		s.Providers = []ProviderUsage{}
	}
	return s
}

// prepare fills the ID and timestamp of a record about to be stored.
func prepare(rec Record, now func() time.Time) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec
}
