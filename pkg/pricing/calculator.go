package pricing

import (
	"log/slog"
	"math"
	"sync"
)

// BytesPerGB is the divisor used for per-GB pricing (GiB).
const BytesPerGB = 1 << 30

// DefaultRateKey is the rate applied to providers without their own entry.
const DefaultRateKey = "default"

// Calculator computes traffic cost from a per-provider USD/GB rate table.
// It is thread-safe and supports hot-reload of the rate table.
type Calculator struct {
	// rates maps provider name to USD per GiB
	rates map[string]float64

	// mu protects rates
	mu sync.RWMutex
}

// NewCalculator creates a calculator with the given rates. The map is copied.
func NewCalculator(rates map[string]float64) *Calculator {
	return &Calculator{
		rates: copyRates(rates),
	}
}

// Cost returns the USD cost of transferring bytes through provider,
// rounded to 8 decimal places. Unknown providers fall back to the
// "default" rate, or cost nothing.
func (c *Calculator) Cost(provider string, bytes int64) float64 {
	if bytes <= 0 {
		return 0
	}

	rate, ok := c.Rate(provider)
	if !ok {
		slog.Warn("no proxy pricing for provider, recording zero cost",
			"provider", provider,
			"bytes", bytes,
		)
		return 0
	}

	return Round8(float64(bytes) / BytesPerGB * rate)
}

// Rate returns the USD/GB rate used for provider.
func (c *Calculator) Rate(provider string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if rate, ok := c.rates[provider]; ok {
		return rate, true
	}
	rate, ok := c.rates[DefaultRateKey]
	return rate, ok
}

// Rates returns a copy of the rate table.
func (c *Calculator) Rates() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyRates(c.rates)
}

// UpdateRates replaces the rate table (hot-reload support).
// This is thread-safe and can be called while the calculator is in use.
func (c *Calculator) UpdateRates(rates map[string]float64) {
	next := copyRates(rates)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = next
}

// SetRate updates a single provider's rate.
func (c *Calculator) SetRate(provider string, costPerGB float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[provider] = costPerGB
}

// Round8 rounds a USD amount to 8 decimal places.
func Round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

func copyRates(rates map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(rates))
	for k, v := range rates {
		out[k] = v
	}
	return out
}
