package tracing

import "go.opentelemetry.io/otel/attribute"

// Span names.
const (
	SpanProxyRequest = "proxy.request"
	SpanProxyAttempt = "proxy.attempt"
)

// Attribute keys recorded on proxy spans. HTTP keys follow OpenTelemetry
// semantic conventions; proxy.* keys are specific to this service.
const (
	AttrHTTPMethod     = attribute.Key("http.request.method")
	AttrHTTPStatusCode = attribute.Key("http.response.status_code")
	AttrServerAddress  = attribute.Key("server.address")

	AttrProvider   = attribute.Key("proxy.provider")
	AttrRuleID     = attribute.Key("proxy.rule_id")
	AttrCountry    = attribute.Key("proxy.country")
	AttrSticky     = attribute.Key("proxy.sticky")
	AttrAttempt    = attribute.Key("proxy.attempt")
	AttrAttempts   = attribute.Key("proxy.attempts")
	AttrOutcome    = attribute.Key("proxy.outcome")
	AttrBytes      = attribute.Key("proxy.bytes")
	AttrCostUSD    = attribute.Key("proxy.cost_usd")
	AttrSessionID  = attribute.Key("proxy.session_id")
	AttrWorkflowID = attribute.Key("proxy.workflow_id")
)

// RequestAttributes describe a logical proxied request. The target URL
// is not recorded, only its host.
func RequestAttributes(method, host, sessionID, workflowID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrHTTPMethod.String(method),
		AttrServerAddress.String(host),
	}
	if sessionID != "" {
		attrs = append(attrs, AttrSessionID.String(sessionID))
	}
	if workflowID != "" {
		attrs = append(attrs, AttrWorkflowID.String(workflowID))
	}
	return attrs
}

// SelectionAttributes describe the provider chosen for one attempt.
func SelectionAttributes(provider, ruleID, country string, sticky bool, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrProvider.String(provider),
		AttrRuleID.String(ruleID),
		AttrSticky.Bool(sticky),
		AttrAttempt.Int(attempt),
	}
	if country != "" {
		attrs = append(attrs, AttrCountry.String(country))
	}
	return attrs
}

// OutcomeAttributes describe how an attempt or request ended.
func OutcomeAttributes(outcome string, status int, bytes int64, cost float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrOutcome.String(outcome),
		AttrBytes.Int64(bytes),
		AttrCostUSD.Float64(cost),
	}
	if status > 0 {
		attrs = append(attrs, AttrHTTPStatusCode.Int(status))
	}
	return attrs
}
