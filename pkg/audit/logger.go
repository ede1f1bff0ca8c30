package audit

import (
	"context"
	"net/http"
	"time"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogAuthentication logs a credential verification event
	LogAuthentication(ctx context.Context, eventType EventType, userID string, status EventStatus, message string) error

	// LogAuthorization logs a permission or access decision event
	LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error

	// LogCredential logs a credential lifecycle event (token, session, API key)
	LogCredential(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, credentialID string, status EventStatus, message string) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// contextKey is the type for context keys
type contextKey string

// RequestInfoKey is the context key for request-scoped audit fields.
const RequestInfoKey contextKey = "audit_request_info"

// RequestInfo carries request-scoped fields that enrich audit events.
type RequestInfo struct {
	RequestID string
	UserID    string
	TenantID  string
	IPAddress string
	UserAgent string
	Method    string
	Path      string
}

// WithRequestInfo attaches request-scoped audit fields to the context
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, RequestInfoKey, info)
}

// GetRequestInfo retrieves request-scoped audit fields from the context
func GetRequestInfo(ctx context.Context) RequestInfo {
	if info, ok := ctx.Value(RequestInfoKey).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}

// NewNoOpLogger returns a logger that discards everything. It stands in when
// auditing is disabled so callers never nil-check.
func NewNoOpLogger() Logger {
	return &noOpLogger{}
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (l *noOpLogger) LogAuthentication(ctx context.Context, eventType EventType, userID string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogCredential(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, credentialID string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr
	return r.RemoteAddr
}

// buildBaseEvent creates a base audit event with common fields populated
func buildBaseEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	info := GetRequestInfo(ctx)

	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserID:    info.UserID,
		TenantID:  info.TenantID,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
		RequestID: info.RequestID,
		Method:    info.Method,
		Path:      info.Path,
	}
}

// RequestInfoFromHTTP builds RequestInfo from an incoming request.
func RequestInfoFromHTTP(r *http.Request, requestID string) RequestInfo {
	return RequestInfo{
		RequestID: requestID,
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
}
