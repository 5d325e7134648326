package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newLedgers(t *testing.T) map[string]Ledger {
	t.Helper()

	sqlite, err := OpenSQLiteLedger(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteLedger() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Ledger{
		"memory": NewMemoryLedger(),
		"sqlite": sqlite,
	}
}

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seedRecords(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()

	records := []Record{
		{SessionID: "s1", WorkflowID: "w1", Provider: "p1", BytesTransferred: 1048576, Cost: 0.00195313, Attempt: 1, StatusCode: 502, CreatedAt: base},
		{SessionID: "s1", WorkflowID: "w1", Provider: "p2", BytesTransferred: 1048576, Cost: 0.00195313, Attempt: 2, StatusCode: 200, Success: true, CreatedAt: base.Add(time.Second)},
		{SessionID: "s2", WorkflowID: "w2", Provider: "p2", BytesTransferred: 2048, Cost: 0.00000381, Attempt: 1, StatusCode: 200, Success: true, TargetHost: "example.com", CreatedAt: base.Add(48 * time.Hour)},
	}
	for _, r := range records {
		if err := l.AppendUsageRecord(ctx, r); err != nil {
			t.Fatalf("AppendUsageRecord() error = %v", err)
		}
	}
}

func TestLedger_Query(t *testing.T) {
	ctx := context.Background()

	for name, l := range newLedgers(t) {
		t.Run(name, func(t *testing.T) {
			seedRecords(t, l)

			all, err := l.Query(ctx, Filter{})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("Query() len = %d, want 3", len(all))
			}
			if all[0].TargetHost != "example.com" {
				t.Errorf("Query() not newest first: %+v", all[0])
			}
			for _, r := range all {
				if r.ID == "" {
					t.Error("record ID not assigned")
				}
			}

			s1, _ := l.Query(ctx, Filter{SessionID: "s1"})
			if len(s1) != 2 || s1[0].Provider != "p2" || !s1[0].Success || s1[0].Attempt != 2 {
				t.Errorf("Query(session s1) = %+v", s1)
			}

			limited, _ := l.Query(ctx, Filter{Provider: "p2", Limit: 1})
			if len(limited) != 1 {
				t.Errorf("Query(limit 1) len = %d", len(limited))
			}

			window, _ := l.Query(ctx, Filter{Since: base, Until: base.Add(time.Second)})
			if len(window) != 1 || window[0].Provider != "p1" {
				t.Errorf("Query(window) = %+v", window)
			}
			if !window[0].CreatedAt.Equal(base) {
				t.Errorf("CreatedAt = %v, want %v", window[0].CreatedAt, base)
			}
		})
	}
}

func TestLedger_Summarize(t *testing.T) {
	ctx := context.Background()

	for name, l := range newLedgers(t) {
		t.Run(name, func(t *testing.T) {
			seedRecords(t, l)

			sum, err := l.Summarize(ctx, Filter{WorkflowID: "w1"})
			if err != nil {
				t.Fatalf("Summarize() error = %v", err)
			}
			if sum.TotalRequests != 2 || sum.TotalBytes != 2097152 {
				t.Errorf("Summarize() totals = %+v", sum)
			}
			if sum.TotalCost != 0.00390626 {
				t.Errorf("TotalCost = %v, want 0.00390626", sum.TotalCost)
			}
			if len(sum.Providers) != 2 || sum.Providers[0].Provider != "p1" || sum.Providers[1].Successes != 1 {
				t.Errorf("Providers = %+v", sum.Providers)
			}

			spent, err := l.SpentSince(ctx, base.Add(time.Hour))
			if err != nil {
				t.Fatalf("SpentSince() error = %v", err)
			}
			if spent != 0.00000381 {
				t.Errorf("SpentSince() = %v, want 0.00000381", spent)
			}

			empty, _ := l.Summarize(ctx, Filter{SessionID: "nobody"})
			if empty.TotalRequests != 0 || empty.Providers == nil {
				t.Errorf("empty Summarize() = %+v", empty)
			}
		})
	}
}

func TestLedger_DeleteBefore(t *testing.T) {
	ctx := context.Background()

	for name, l := range newLedgers(t) {
		t.Run(name, func(t *testing.T) {
			seedRecords(t, l)

			n, err := l.DeleteBefore(ctx, base.Add(time.Hour))
			if err != nil {
				t.Fatalf("DeleteBefore() error = %v", err)
			}
			if n != 2 {
				t.Errorf("DeleteBefore() = %d, want 2", n)
			}
			rest, _ := l.Query(ctx, Filter{})
			if len(rest) != 1 {
				t.Errorf("remaining = %d, want 1", len(rest))
			}
		})
	}
}

func TestSQLiteLedger_Migrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")

	l, err := OpenSQLiteLedger(path)
	if err != nil {
		t.Fatalf("OpenSQLiteLedger() error = %v", err)
	}
	if err := l.AppendUsageRecord(context.Background(), Record{Provider: "p1", Attempt: 1}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	// Reopening applies no migrations and keeps data.
	l, err = OpenSQLiteLedger(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer l.Close()

	var version int
	if err := l.db.QueryRow("SELECT MAX(version) FROM " + migrationsTable).Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("schema version = %d, want %d", version, schemaVersion)
	}

	recs, _ := l.Query(context.Background(), Filter{})
	if len(recs) != 1 {
		t.Errorf("records after reopen = %d, want 1", len(recs))
	}
}

func TestRetentionScheduler_Prune(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	seedRecords(t, l)

	s := NewRetentionScheduler(l, RetentionConfig{RetentionDays: 1})
	s.now = func() time.Time { return base.Add(50 * time.Hour) }

	n, err := s.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}

	disabled := NewRetentionScheduler(l, RetentionConfig{})
	if n, _ := disabled.Prune(ctx); n != 0 {
		t.Errorf("disabled Prune() = %d, want 0", n)
	}
}

func TestRetentionScheduler_Lifecycle(t *testing.T) {
	l := NewMemoryLedger()

	t.Run("invalid schedule", func(t *testing.T) {
		s := NewRetentionScheduler(l, RetentionConfig{RetentionDays: 7, PruneSchedule: "not a cron"})
		if err := s.Start(context.Background()); err == nil {
			t.Error("Start() should reject an invalid schedule")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		s := NewRetentionScheduler(l, RetentionConfig{})
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if s.IsRunning() || s.NextRun() != nil {
			t.Error("disabled scheduler should not run")
		}
	})

	t.Run("start and stop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := NewRetentionScheduler(l, RetentionConfig{RetentionDays: 7})
		if err := s.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !s.IsRunning() || s.NextRun() == nil {
			t.Error("scheduler should be running with a next run")
		}
		s.Stop()
		if s.IsRunning() {
			t.Error("scheduler still running after Stop()")
		}
	})
}
