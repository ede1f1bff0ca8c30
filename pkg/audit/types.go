package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Token lifecycle events
	EventTypeTokenIssued       EventType = "token.issued"
	EventTypeTokenRefreshed    EventType = "token.refreshed"
	EventTypeTokenVerifyFailed EventType = "token.verify_failed"
	EventTypeTokenRevoked      EventType = "token.revoked"

	// Service identity events
	EventTypeServiceRegistered   EventType = "service.registered"
	EventTypeServiceDeregistered EventType = "service.deregistered"
	EventTypeServiceTokenIssued  EventType = "service.token_issued"
	EventTypeServiceTokenDenied  EventType = "service.token_denied"

	// Authorization events
	EventTypeAuthzPermissionDenied EventType = "authz.permission_denied"
	EventTypeAuthzRoleChange       EventType = "authz.role_change"
	EventTypeAuthzRoleAssigned     EventType = "authz.role_assigned"
	EventTypeAuthzRoleRevoked      EventType = "authz.role_revoked"
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"

	// Session lifecycle events
	EventTypeSessionCreated     EventType = "session.created"
	EventTypeSessionInvalidated EventType = "session.invalidated"
	EventTypeSessionExpired     EventType = "session.expired"
	EventTypeSessionEvicted     EventType = "session.evicted"
	EventTypeSessionSuspicious  EventType = "session.suspicious"

	// API key events
	EventTypeAPIKeyCreated    EventType = "apikey.created"
	EventTypeAPIKeyRotated    EventType = "apikey.rotated"
	EventTypeAPIKeyRevoked    EventType = "apikey.revoked"
	EventTypeAPIKeySuspended  EventType = "apikey.suspended"
	EventTypeAPIKeyActivated  EventType = "apikey.activated"
	EventTypeAPIKeyAuthFailed EventType = "apikey.auth_failed"

	// Rate limiting events
	EventTypeRateLimitExceeded EventType = "ratelimit.exceeded"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource an event concerns
type ResourceType string

const (
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeRole    ResourceType = "role"
	ResourceTypeToken   ResourceType = "token"
	ResourceTypeSession ResourceType = "session"
	ResourceTypeAPIKey  ResourceType = "api_key"
	ResourceTypeService ResourceType = "service"
	ResourceTypeRoute   ResourceType = "route"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// Core fields
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID      string `json:"user_id,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"`
	ServiceName string `json:"service_name,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for role updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}
