package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// SamplerAlways samples every trace.
	SamplerAlways = "always"

	// SamplerNever samples no root spans.
	SamplerNever = "never"

	// SamplerRatio samples a fraction of traces by trace ID.
	SamplerRatio = "ratio"
)

// createSampler builds the sampler for strategy and ratio.
//
// # Sampling Strategies
//
// always: records every trace. Use while debugging failover behavior.
//
//	telemetry:
//	  tracing:
//	    sampler: always
//
// never: records no new traces. Traces started upstream and propagated
// with a sampled traceparent are still recorded.
//
//	telemetry:
//	  tracing:
//	    sampler: never
//
// ratio: records a fraction of traces chosen by trace ID hash, so every
// service seeing the same trace makes the same decision.
//
//	telemetry:
//	  tracing:
//	    sampler: ratio
//	    sample_ratio: 0.1  # 10% of logical requests
//
// # Parent-Based Sampling
//
// The strategy is wrapped in ParentBased. A proxied request and all of its
// attempts share one decision:
//   - a sampled parent span yields sampled children
//   - an unsampled parent span yields unsampled children
//   - a root span is decided by the strategy
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	var base sdktrace.Sampler
	switch strategy {
	case SamplerAlways:
		base = sdktrace.AlwaysSample()
	case SamplerNever:
		base = sdktrace.NeverSample()
	case SamplerRatio:
		if ratio < 0 || ratio > 1 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		base = sdktrace.TraceIDRatioBased(ratio)
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio)", strategy)
	}
	return sdktrace.ParentBased(base), nil
}
