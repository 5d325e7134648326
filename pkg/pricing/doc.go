// Package pricing computes proxy traffic cost.
//
// Providers bill residential traffic per gigabyte, so the cost of an
// attempt is bytes/2^30 * cost_per_gb, rounded to 8 decimal places:
//
//	calc := pricing.NewCalculator(map[string]float64{"p2": 2})
//	calc.Cost("p2", 1<<20) // 0.00195313
package pricing
