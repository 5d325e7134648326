package health

import (
	"math"
	"sort"
)

// Rank orders candidates for selection: healthy first, then by score
// descending, then by priority ascending. Candidates tied on all three
// are ordered by weighted random sampling without replacement, so a
// provider with twice the weight is twice as likely to come first.
// The tie-break is reproducible when the scorer was built with a Seed.
func (s *Scorer) Rank(candidates []Candidate) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		stats, _ := s.Stats(c.Name)
		ranked[i] = Ranked{
			Candidate: c,
			Stats:     stats,
			Healthy:   s.healthyFor(stats, c.MinSuccessRate),
		}
	}

	keys := s.tieBreakKeys(ranked)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Healthy != b.Healthy {
			return a.Healthy
		}
		if a.Stats.Score != b.Stats.Score {
			return a.Stats.Score > b.Stats.Score
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return keys[a.Name] > keys[b.Name]
	})

	return ranked
}

// tieBreakKeys draws an Efraimidis-Spirakis key u^(1/w) per candidate.
// Draws happen in input order so a seeded scorer is deterministic.
func (s *Scorer) tieBreakKeys(ranked []Ranked) map[string]float64 {
	keys := make(map[string]float64, len(ranked))

	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	for _, r := range ranked {
		w := r.Weight
		if w <= 0 {
			w = 1e-9
		}
		u := s.rng.Float64()
		keys[r.Name] = math.Pow(u, 1/w)
	}
	return keys
}
