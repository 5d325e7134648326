package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger keeps records in memory.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []Record
	now     func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

// AppendUsageRecord stores rec.
func (l *MemoryLedger) AppendUsageRecord(_ context.Context, rec Record) error {
	rec = prepare(rec, l.now)

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return nil
}

// Query returns matching records, newest first.
func (l *MemoryLedger) Query(_ context.Context, f Filter) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for i := range l.records {
		if f.matches(&l.records[i]) {
			out = append(out, l.records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Summarize aggregates matching records by provider.
func (l *MemoryLedger) Summarize(_ context.Context, f Filter) (Summary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byProvider := make(map[string]*ProviderUsage)
	for i := range l.records {
		r := &l.records[i]
		if !f.matches(r) {
			continue
		}
		pu, ok := byProvider[r.Provider]
		if !ok {
			pu = &ProviderUsage{Provider: r.Provider}
			byProvider[r.Provider] = pu
		}
		pu.Requests++
		if r.Success {
			pu.Successes++
		}
		pu.Bytes += r.BytesTransferred
		pu.Cost += r.Cost
	}

	rows := make([]ProviderUsage, 0, len(byProvider))
	for _, pu := range byProvider {
		rows = append(rows, *pu)
	}
	return summarize(rows), nil
}

// SpentSince returns the total cost of records created at or after t.
func (l *MemoryLedger) SpentSince(ctx context.Context, t time.Time) (float64, error) {
	s, err := l.Summarize(ctx, Filter{Since: t})
	if err != nil {
		return 0, err
	}
	return s.TotalCost, nil
}

// DeleteBefore removes records created before t.
func (l *MemoryLedger) DeleteBefore(_ context.Context, t time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0]
	var deleted int64
	for _, r := range l.records {
		if r.CreatedAt.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	return deleted, nil
}

// Close is a no-op.
func (l *MemoryLedger) Close() error {
	return nil
}
