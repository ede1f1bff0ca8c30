package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when the id resolves to nothing,
	// including records already reaped by a backend's native expiry.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrSessionExpired is returned when a read lazily detects that the
	// session's lifetime has passed.
	ErrSessionExpired = errors.New("session: expired")

	// ErrSessionNotActive is returned for sessions in a terminal or flagged
	// state.
	ErrSessionNotActive = errors.New("session: not active")

	// ErrBackendUnavailable wraps store failures so callers can branch on
	// the retryable kind.
	ErrBackendUnavailable = errors.New("session: backend unavailable")
)

// Status is the lifecycle state of a session. Active sessions move to
// Invalidated (explicit logout), Expired (time-based) or Suspicious
// (security flag); nothing moves back to Active.
type Status string

const (
	StatusActive      Status = "active"
	StatusExpired     Status = "expired"
	StatusInvalidated Status = "invalidated"
	StatusSuspicious  Status = "suspicious"
)

// Session is one server-side login record.
type Session struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	TenantID     string            `json:"tenant_id,omitempty"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	LastAccessed time.Time         `json:"last_accessed"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so store internals never alias caller state.
func (s *Session) Clone() *Session {
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// expiredAt reports whether the session's lifetime has passed.
func (s *Session) expiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
