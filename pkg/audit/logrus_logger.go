package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger emits audit events through a logrus logger, one structured
// entry per event. Denied and failed events log at warn level.
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger creates a logrus-backed audit logger. A nil logger gets a
// default logrus instance.
func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	if log == nil {
		log = logrus.New()
	}
	return &LogrusLogger{log: log}
}

// Log logs an audit event
func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := logrus.Fields{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.TenantID != "" {
		fields["tenant_id"] = event.TenantID
	}
	if event.ServiceName != "" {
		fields["service_name"] = event.ServiceName
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
	}
	if event.ResourceID != "" {
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := l.log.WithFields(fields)
	switch event.Status {
	case EventStatusDenied, EventStatusFailure:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

// LogAuthentication logs a credential verification event
func (l *LogrusLogger) LogAuthentication(ctx context.Context, eventType EventType, userID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.Message = message
	event.ResourceType = ResourceTypeUser

	return l.Log(ctx, event)
}

// LogAuthorization logs a permission or access decision event
func (l *LogrusLogger) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message

	return l.Log(ctx, event)
}

// LogCredential logs a credential lifecycle event
func (l *LogrusLogger) LogCredential(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, credentialID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = credentialID
	event.Message = message

	return l.Log(ctx, event)
}

// Close flushes nothing; logrus writers own their lifecycle.
func (l *LogrusLogger) Close() error {
	return nil
}
