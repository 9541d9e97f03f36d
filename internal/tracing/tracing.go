// Package tracing provides OpenTelemetry spans and request correlation for the
// MCP server.
//
// Every tool call carries a session id. It is logged with audit entries and sent
// to Azure DevOps in the X-TFS-Session header so server-side activity logs can be
// matched to a tool call.
package tracing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// HTTP headers for correlation
const (
	// SessionIDHeader groups the REST calls of one tool invocation in Azure DevOps.
	SessionIDHeader = "X-TFS-Session"
	// TraceIDHeader carries the OpenTelemetry trace id when one is active.
	TraceIDHeader = "X-Trace-ID"
)

// TraceInfo provides correlation identifiers for audit logging and HTTP headers
type TraceInfo struct {
	SessionID string `json:"session_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
	SpanID    string `json:"span_id,omitempty"`
}

// NewSessionID returns a random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// WithSessionID stores a session id in the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID returns the context's session id, or "" when none is set.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// FromContext extracts correlation identifiers from the context
func FromContext(ctx context.Context) *TraceInfo {
	info := &TraceInfo{SessionID: SessionID(ctx)}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		info.TraceID = sc.TraceID().String()
		info.SpanID = sc.SpanID().String()
	}
	return info
}

// Headers returns the identifiers as HTTP headers for propagation
func (t *TraceInfo) Headers() map[string]string {
	headers := make(map[string]string, 2)
	if t.SessionID != "" {
		headers[SessionIDHeader] = t.SessionID
	}
	if t.TraceID != "" {
		headers[TraceIDHeader] = t.TraceID
	}
	return headers
}
