// Package tracing records OpenTelemetry spans for proxied requests.
//
// Each logical request gets a proxy.request span with one proxy.attempt
// child per provider tried:
//
//	proxy.request  method=GET server.address=www.linkedin.com attempts=2
//	├── proxy.attempt  provider=brightdata outcome=http_error status=403
//	└── proxy.attempt  provider=oxylabs    outcome=success    status=200
//
// Spans carry the target host, provider, rule, attempt number, bytes and
// cost. Proxy URLs and credentials are never recorded, and trace headers
// are never forwarded to proxied targets.
//
// Tracing is disabled by default. Enable it with an OTLP/gRPC collector:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// A nil *Tracer is valid and produces non-recording spans.
package tracing
