package routing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// MatchStats is a point-in-time snapshot of rule match counters.
type MatchStats struct {
	// TotalMatches is the number of Match calls that returned a rule.
	TotalMatches int64 `json:"total_matches"`

	// MatchesPerRule counts matches by rule ID.
	MatchesPerRule map[string]int64 `json:"matches_per_rule"`

	// CatchAllMatches counts matches that fell through to a catch-all rule.
	CatchAllMatches int64 `json:"catch_all_matches"`

	// Errors counts Match calls that failed.
	Errors int64 `json:"errors"`

	// LastResetTime is when statistics were last reset.
	LastResetTime time.Time `json:"last_reset_time"`
}

// AtomicMatchStats counts rule matches without locking on the hot path.
// Counters survive table rebuilds.
type AtomicMatchStats struct {
	totalMatches    atomic.Int64
	catchAllMatches atomic.Int64
	errors          atomic.Int64

	// perRule maps rule ID to its counter
	perRule *xsync.Map[string, *atomic.Int64]

	lastResetTime time.Time

	// mu protects lastResetTime
	mu sync.RWMutex
}

// NewAtomicMatchStats creates an empty match statistics tracker.
func NewAtomicMatchStats() *AtomicMatchStats {
	return &AtomicMatchStats{
		perRule:       xsync.NewMap[string, *atomic.Int64](),
		lastResetTime: time.Now(),
	}
}

// RecordMatch counts a successful match of rule.
func (s *AtomicMatchStats) RecordMatch(rule Rule) {
	s.totalMatches.Add(1)
	if rule.IsCatchAll() {
		s.catchAllMatches.Add(1)
	}
	counter, _ := s.perRule.LoadOrCompute(rule.ID, func() (*atomic.Int64, bool) {
		return &atomic.Int64{}, false
	})
	counter.Add(1)
}

// RecordError counts a failed match.
func (s *AtomicMatchStats) RecordError() {
	s.errors.Add(1)
}

// Snapshot returns a point-in-time copy of the counters.
func (s *AtomicMatchStats) Snapshot() MatchStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perRule := make(map[string]int64, s.perRule.Size())
	s.perRule.Range(func(id string, counter *atomic.Int64) bool {
		perRule[id] = counter.Load()
		return true
	})

	return MatchStats{
		TotalMatches:    s.totalMatches.Load(),
		MatchesPerRule:  perRule,
		CatchAllMatches: s.catchAllMatches.Load(),
		Errors:          s.errors.Load(),
		LastResetTime:   s.lastResetTime,
	}
}

// Reset zeroes all counters.
func (s *AtomicMatchStats) Reset() {
	s.totalMatches.Store(0)
	s.catchAllMatches.Store(0)
	s.errors.Store(0)
	s.perRule.Clear()

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
