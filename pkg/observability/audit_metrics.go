package observability

import (
	"context"
	"strings"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
)

// AuditMetricsLogger is an audit sink that turns events into Prometheus
// counters. It is meant to be fanned out next to the real sink with
// audit.NewMultiLogger, so the same event stream that lands in the audit log
// also drives the dashboards. It never fails and holds no state.
//
// Access denials from the authorization edge are deliberately not counted
// here: the edge reports those through its decision observer, which also
// carries the latency.
type AuditMetricsLogger struct {
	metrics *Metrics
}

// NewAuditMetricsLogger returns a sink recording events into metrics.
func NewAuditMetricsLogger(m *Metrics) *AuditMetricsLogger {
	return &AuditMetricsLogger{metrics: m}
}

// Log records the event's counters. The error is always nil.
func (l *AuditMetricsLogger) Log(ctx context.Context, event *audit.AuditEvent) error {
	if event != nil {
		l.record(event)
	}
	return nil
}

// LogAuthentication records a credential verification event.
func (l *AuditMetricsLogger) LogAuthentication(ctx context.Context, eventType audit.EventType, userID string, status audit.EventStatus, message string) error {
	l.record(&audit.AuditEvent{EventType: eventType, UserID: userID, Status: status, Message: message})
	return nil
}

// LogAuthorization records a permission or access decision event.
func (l *AuditMetricsLogger) LogAuthorization(ctx context.Context, eventType audit.EventType, userID string, resourceType audit.ResourceType, resourceID string, status audit.EventStatus, message string) error {
	l.record(&audit.AuditEvent{EventType: eventType, UserID: userID, ResourceType: resourceType, ResourceID: resourceID, Status: status, Message: message})
	return nil
}

// LogCredential records a credential lifecycle event.
func (l *AuditMetricsLogger) LogCredential(ctx context.Context, eventType audit.EventType, userID string, resourceType audit.ResourceType, credentialID string, status audit.EventStatus, message string) error {
	l.record(&audit.AuditEvent{EventType: eventType, UserID: userID, ResourceType: resourceType, ResourceID: credentialID, Status: status, Message: message})
	return nil
}

// Close is a no-op; the logger holds no resources.
func (l *AuditMetricsLogger) Close() error {
	return nil
}

func (l *AuditMetricsLogger) record(e *audit.AuditEvent) {
	m := l.metrics

	category, _, _ := strings.Cut(string(e.EventType), ".")
	m.AuditEventsTotal.WithLabelValues(category).Inc()

	switch e.EventType {
	case audit.EventTypeTokenIssued, audit.EventTypeTokenRefreshed:
		// Both operations mint a full pair.
		m.TokensIssuedTotal.WithLabelValues("access").Inc()
		m.TokensIssuedTotal.WithLabelValues("refresh").Inc()
	case audit.EventTypeServiceTokenIssued:
		m.TokensIssuedTotal.WithLabelValues("service").Inc()
	case audit.EventTypeTokenVerifyFailed:
		m.TokenVerifiesTotal.WithLabelValues("failure").Inc()
	case audit.EventTypeTokenRevoked:
		m.TokensRevokedTotal.Inc()

	case audit.EventTypeSessionCreated:
		m.SessionsCreatedTotal.Inc()
		m.SessionsActive.Inc()
	case audit.EventTypeSessionInvalidated, audit.EventTypeSessionExpired,
		audit.EventTypeSessionEvicted, audit.EventTypeSessionSuspicious:
		_, reason, _ := strings.Cut(string(e.EventType), ".")
		m.SessionsEndedTotal.WithLabelValues(reason).Inc()
		m.SessionsActive.Dec()

	case audit.EventTypeAPIKeyAuthFailed:
		m.APIKeyAuthTotal.WithLabelValues("failure").Inc()
	case audit.EventTypeRateLimitExceeded:
		m.RateLimitHitsTotal.WithLabelValues(rateLimitWindow(e.Message)).Inc()

	case audit.EventTypeAuthzPermissionDenied:
		m.PermissionChecksTotal.WithLabelValues("denied").Inc()
	}
}

// rateLimitWindow pulls the window name out of a quota denial message, which
// ends in "<limit> per <window>". Edge denials carry no window and count
// under "unknown".
func rateLimitWindow(message string) string {
	if _, window, ok := strings.Cut(message, " per "); ok && window != "" {
		return window
	}
	return "unknown"
}
