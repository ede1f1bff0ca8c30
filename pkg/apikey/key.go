package apikey

import (
	"time"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
)

// Status is the lifecycle state of an API key. Active keys move to Suspended
// (reversible), Revoked (terminal) or Expired (time-based, detected lazily);
// only Suspended moves back to Active.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// Key is one stored API key record. The raw secret is never part of the
// record; only its one-way hash and a display prefix survive creation.
type Key struct {
	KeyID     string `json:"key_id"`
	KeyHash   string `json:"-"`
	KeyPrefix string `json:"key_prefix"`
	UserID    string `json:"user_id"`
	TenantID  string `json:"tenant_id,omitempty"`
	Name      string `json:"name,omitempty"`

	Scopes []string `json:"scopes,omitempty"`
	Status Status   `json:"status"`

	RateLimitRequests int          `json:"rate_limit_requests"`
	RateLimitWindow   quota.Window `json:"rate_limit_window"`
	AllowedIPs        []string     `json:"allowed_ips,omitempty"`
	RequireHTTPS      bool         `json:"require_https"`

	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	TotalRequests  int64 `json:"total_requests"`
	FailedRequests int64 `json:"failed_requests"`

	RotatedFrom string `json:"rotated_from,omitempty"`
}

// HasScope reports whether the key grants the scope. A stored "*" grants
// everything.
func (k *Key) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so store internals never alias caller state.
func (k *Key) Clone() *Key {
	out := *k
	if k.Scopes != nil {
		out.Scopes = append([]string(nil), k.Scopes...)
	}
	if k.AllowedIPs != nil {
		out.AllowedIPs = append([]string(nil), k.AllowedIPs...)
	}
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		out.ExpiresAt = &t
	}
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		out.LastUsedAt = &t
	}
	return &out
}

// expiredAt reports whether the key's expiry, if set, has passed.
func (k *Key) expiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// live reports whether the key still counts toward its user's cap.
func (k *Key) live(now time.Time) bool {
	switch k.Status {
	case StatusRevoked, StatusExpired:
		return false
	}
	return !k.expiredAt(now)
}

// ClientInfo carries the request attributes the authentication pipeline
// checks against key policy.
type ClientInfo struct {
	IPAddress string
	Secure    bool
}
