package audit

import (
	"context"
	"errors"
)

// MultiLogger fans each event out to several sinks in registration order.
// Fan-out is synchronous; deployments that need buffering wrap the whole
// MultiLogger in an AsyncLogger instead of queueing per sink, so one queue
// owns ordering and drop accounting.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger composes sinks into one Logger.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// Log delivers the event to every sink. A failing sink does not stop
// delivery to the rest; all failures come back joined.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogAuthentication logs a credential verification event.
func (m *MultiLogger) LogAuthentication(ctx context.Context, eventType EventType, userID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.Message = message
	event.ResourceType = ResourceTypeUser

	return m.Log(ctx, event)
}

// LogAuthorization logs a permission or access decision event.
func (m *MultiLogger) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message

	return m.Log(ctx, event)
}

// LogCredential logs a credential lifecycle event.
func (m *MultiLogger) LogCredential(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, credentialID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = credentialID
	event.Message = message

	return m.Log(ctx, event)
}

// Close closes every sink, reporting all failures joined.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
