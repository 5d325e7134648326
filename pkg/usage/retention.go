package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs retention daily at 3 AM.
const DefaultPruneSchedule = "0 3 * * *"

// RetentionConfig controls usage record pruning.
type RetentionConfig struct {
	// RetentionDays is how long records are kept. Zero disables pruning.
	RetentionDays int

	// PruneSchedule is a standard cron expression.
	// Default: "0 3 * * *"
	PruneSchedule string
}

// RetentionScheduler deletes expired usage records on a cron schedule.
type RetentionScheduler struct {
	ledger  Ledger
	config  RetentionConfig
	cron    *cron.Cron
	now     func() time.Time
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler creates a scheduler for ledger.
func NewRetentionScheduler(ledger Ledger, config RetentionConfig) *RetentionScheduler {
	if config.PruneSchedule == "" {
		config.PruneSchedule = DefaultPruneSchedule
	}
	return &RetentionScheduler{
		ledger: ledger,
		config: config,
		cron:   cron.New(),
		now:    time.Now,
		logger: slog.Default().With("component", "usage.retention"),
	}
}

// Start schedules pruning until ctx is cancelled. It does nothing when
// RetentionDays is zero.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.RetentionDays <= 0 {
		s.logger.Info("usage retention disabled, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.PruneSchedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.PruneSchedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.PruneSchedule, func() {
		s.run(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule usage pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("usage retention scheduler started",
		"schedule", s.config.PruneSchedule,
		"retention_days", s.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Prune deletes records older than the retention window.
func (s *RetentionScheduler) Prune(ctx context.Context) (int64, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	return s.ledger.DeleteBefore(ctx, cutoff)
}

func (s *RetentionScheduler) run(ctx context.Context) {
	deleted, err := s.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled usage pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("scheduled usage pruning completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("scheduled usage pruning completed, no records deleted")
	}
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("usage retention scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled prune, or nil when not scheduled.
func (s *RetentionScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
