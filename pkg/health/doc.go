// Package health scores upstream proxy providers from live traffic.
//
// Every proxied attempt is reported to a Scorer, which keeps an
// exponentially weighted success rate and latency per provider and
// combines them into a score in [0, 1]:
//
//	score = 0.8*successRate + 0.2*latencyFactor
//	latencyFactor = 1                  if avgLatency <= baseline
//	              = baseline/avgLatency otherwise
//
// Health is not persisted. A provider without reports, including every
// provider after a restart, has score 1 and is healthy. A provider can
// only be marked unhealthy after MinSamples reports.
package health
