package health

import (
	"testing"
)

func names(ranked []Ranked) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Name
	}
	return out
}

func TestRank_Ordering(t *testing.T) {
	s := NewScorer(Config{Seed: 1, MinSamples: 1})

	// "sick" is unhealthy, "slow" healthy with a reduced score.
	for i := 0; i < 30; i++ {
		s.Report("sick", Result{Success: false})
		s.Report("slow", Result{Success: true, LatencyMs: 6000})
	}

	ranked := s.Rank([]Candidate{
		{Name: "sick", Priority: 0, Weight: 1},
		{Name: "slow", Priority: 0, Weight: 1},
		{Name: "b", Priority: 2, Weight: 1},
		{Name: "a", Priority: 1, Weight: 1},
	})

	want := []string{"a", "b", "slow", "sick"}
	got := names(ranked)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rank() = %v, want %v", got, want)
		}
	}
	if ranked[3].Healthy {
		t.Error("sick provider should be ranked unhealthy")
	}
}

func TestRank_MinSuccessRateDemotes(t *testing.T) {
	s := NewScorer(Config{Seed: 1})
	for i := 0; i < 20; i++ {
		s.Report("flaky", Result{Success: i%3 != 0, LatencyMs: 100})
	}

	ranked := s.Rank([]Candidate{
		{Name: "flaky", Priority: 0, Weight: 1, MinSuccessRate: 0.95},
		{Name: "fresh", Priority: 5, Weight: 1, MinSuccessRate: 0.95},
	})
	if ranked[0].Name != "fresh" {
		t.Errorf("Rank() = %v, want fresh first", names(ranked))
	}
}

func TestRank_SeededTieBreakIsDeterministic(t *testing.T) {
	candidates := []Candidate{
		{Name: "a", Weight: 1},
		{Name: "b", Weight: 1},
		{Name: "c", Weight: 1},
		{Name: "d", Weight: 1},
	}

	first := names(NewScorer(Config{Seed: 42}).Rank(candidates))
	for i := 0; i < 10; i++ {
		got := names(NewScorer(Config{Seed: 42}).Rank(candidates))
		for j := range first {
			if got[j] != first[j] {
				t.Fatalf("run %d: Rank() = %v, want %v", i, got, first)
			}
		}
	}
}

func TestRank_WeightBiasesTieBreak(t *testing.T) {
	s := NewScorer(Config{Seed: 7})
	candidates := []Candidate{
		{Name: "heavy", Weight: 9},
		{Name: "light", Weight: 1},
	}

	heavyFirst := 0
	const rounds = 2000
	for i := 0; i < rounds; i++ {
		if s.Rank(candidates)[0].Name == "heavy" {
			heavyFirst++
		}
	}

	// Expected share is 0.9; allow generous slack.
	if share := float64(heavyFirst) / rounds; share < 0.8 || share > 0.97 {
		t.Errorf("heavy ranked first in %.2f of rounds, want about 0.9", share)
	}
}
