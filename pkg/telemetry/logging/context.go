package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// SessionKey is the context key for caller session identifiers.
	SessionKey contextKey = "session_id"

	// WorkflowKey is the context key for workflow identifiers.
	WorkflowKey contextKey = "workflow_id"

	// NodeKey is the context key for workflow node identifiers.
	NodeKey contextKey = "node_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithSession adds a session identifier to the context.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// GetSession retrieves the session identifier from the context.
func GetSession(ctx context.Context) string {
	return stringValue(ctx, SessionKey)
}

// WithWorkflow adds workflow and node identifiers to the context.
// Empty values are left unset.
func WithWorkflow(ctx context.Context, workflowID, nodeID string) context.Context {
	if workflowID != "" {
		ctx = context.WithValue(ctx, WorkflowKey, workflowID)
	}
	if nodeID != "" {
		ctx = context.WithValue(ctx, NodeKey, nodeID)
	}
	return ctx
}

// GetWorkflow retrieves the workflow and node identifiers from the context.
func GetWorkflow(ctx context.Context) (workflowID, nodeID string) {
	return stringValue(ctx, WorkflowKey), stringValue(ctx, NodeKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// extractContextFields returns the context's log fields as key-value pairs.
func extractContextFields(ctx context.Context) []any {
	var fields []any
	for _, key := range []contextKey{RequestIDKey, SessionKey, WorkflowKey, NodeKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}

// FromContext returns base annotated with the fields stored in ctx.
// A nil base means slog.Default().
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	fields := extractContextFields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
