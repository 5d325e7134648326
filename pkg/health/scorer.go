package health

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Config holds scoring parameters. Zero values take the defaults below.
type Config struct {
	// Window is the EWMA span in samples; alpha = 2/(Window+1). Default: 20
	Window int

	// LatencyBaseline is the latency at or below which the latency
	// component is perfect. Default: 1500ms
	LatencyBaseline time.Duration

	// MinHealthyScore is the score below which a provider is unhealthy.
	// Default: 0.3
	MinHealthyScore float64

	// MinSamples is the number of reports before a provider can be
	// marked unhealthy. Default: 5
	MinSamples int

	// SuccessWeight and LatencyWeight weight the score components.
	// Defaults: 0.8 and 0.2
	SuccessWeight float64
	LatencyWeight float64

	// Seed seeds the weighted random tie-break (0 = random).
	Seed uint64

	// Now overrides time.Now in tests.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Window <= 0 {
		c.Window = 20
	}
	if c.LatencyBaseline <= 0 {
		c.LatencyBaseline = 1500 * time.Millisecond
	}
	if c.MinHealthyScore <= 0 {
		c.MinHealthyScore = 0.3
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
	if c.SuccessWeight <= 0 && c.LatencyWeight <= 0 {
		c.SuccessWeight = 0.8
		c.LatencyWeight = 0.2
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// state is the rolling health of one provider. Guarded by mu.
type state struct {
	mu sync.Mutex

	successRate  float64
	avgLatencyMs float64
	hasLatency   bool
	samples      int64

	totalRequests       int64
	totalBytes          int64
	consecutiveFailures int
	lastError           string
	lastUpdated         time.Time
}

// Scorer turns reported outcomes into per-provider health scores.
// It is safe for concurrent use: each provider's state has its own lock,
// so reports for different providers never contend.
type Scorer struct {
	cfg   Config
	alpha float64

	states *xsync.Map[string, *state]

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	cfg.applyDefaults()

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Scorer{
		cfg:    cfg,
		alpha:  2 / float64(cfg.Window+1),
		states: xsync.NewMap[string, *state](),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Report folds one outcome into the provider's rolling state and returns
// the updated snapshot. Providers are tracked lazily on first report.
func (s *Scorer) Report(name string, r Result) Stats {
	st, _ := s.states.LoadOrCompute(name, func() (*state, bool) {
		return &state{successRate: 1}, false
	})

	st.mu.Lock()
	defer st.mu.Unlock()

	outcome := 0.0
	if r.Success {
		outcome = 1
	}
	st.successRate += s.alpha * (outcome - st.successRate)

	if r.LatencyMs > 0 {
		if !st.hasLatency {
			st.avgLatencyMs = r.LatencyMs
			st.hasLatency = true
		} else {
			st.avgLatencyMs += s.alpha * (r.LatencyMs - st.avgLatencyMs)
		}
	}

	st.samples++
	st.totalRequests++
	if r.BytesTransferred > 0 {
		st.totalBytes += r.BytesTransferred
	}

	if r.Success {
		st.consecutiveFailures = 0
	} else {
		st.consecutiveFailures++
		st.lastError = r.Err
	}
	st.lastUpdated = s.cfg.Now()

	return s.snapshotLocked(name, st)
}

// Stats returns the provider's snapshot. The second value is false when
// no outcome was ever reported; the snapshot is then the neutral
// cold-start state.
func (s *Scorer) Stats(name string) (Stats, bool) {
	st, ok := s.states.Load(name)
	if !ok {
		return neutralStats(name), false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.snapshotLocked(name, st), true
}

// Snapshot returns stats for every provider with at least one report.
func (s *Scorer) Snapshot() map[string]Stats {
	out := make(map[string]Stats, s.states.Size())
	s.states.Range(func(name string, st *state) bool {
		st.mu.Lock()
		out[name] = s.snapshotLocked(name, st)
		st.mu.Unlock()
		return true
	})
	return out
}

// Forget drops the provider's rolling state.
func (s *Scorer) Forget(name string) {
	s.states.Delete(name)
}

// HealthyFor reports health in a routing context: the provider must be
// healthy and, once warmed up, meet the rule's minimum success rate.
func (s *Scorer) HealthyFor(name string, minSuccessRate float64) bool {
	stats, _ := s.Stats(name)
	return s.healthyFor(stats, minSuccessRate)
}

func (s *Scorer) healthyFor(stats Stats, minSuccessRate float64) bool {
	if !stats.Healthy {
		return false
	}
	if stats.Samples < int64(s.cfg.MinSamples) || minSuccessRate <= 0 {
		return true
	}
	return stats.SuccessRate >= minSuccessRate
}

func (s *Scorer) snapshotLocked(name string, st *state) Stats {
	score := s.score(st.successRate, st.avgLatencyMs)
	return Stats{
		Name:                name,
		Score:               score,
		SuccessRate:         st.successRate,
		AvgLatencyMs:        st.avgLatencyMs,
		TotalRequests:       st.totalRequests,
		TotalBytes:          st.totalBytes,
		Healthy:             st.samples < int64(s.cfg.MinSamples) || score >= s.cfg.MinHealthyScore,
		Samples:             st.samples,
		ConsecutiveFailures: st.consecutiveFailures,
		LastError:           st.lastError,
		LastUpdated:         st.lastUpdated,
	}
}

// score combines success rate and latency. The latency factor is 1 up to
// the baseline and baseline/avg beyond it.
func (s *Scorer) score(successRate, avgLatencyMs float64) float64 {
	latencyFactor := 1.0
	baseline := float64(s.cfg.LatencyBaseline) / float64(time.Millisecond)
	if avgLatencyMs > baseline {
		latencyFactor = baseline / avgLatencyMs
	}

	total := s.cfg.SuccessWeight + s.cfg.LatencyWeight
	score := (s.cfg.SuccessWeight*successRate + s.cfg.LatencyWeight*latencyFactor) / total
	return math.Min(1, math.Max(0, score))
}
