package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim. An access token cannot stand in
// for a refresh token or a service token; every consumer checks the type
// before trusting anything else in the claim set.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeService = "service"
)

// MFAClaims is the multi-factor assertion embedded in a token after a
// successful challenge. The MFA subsystem produces it; this package only
// carries it through issuance and exposes the age check.
type MFAClaims struct {
	Verified  bool             `json:"mfa_verified,omitempty"`
	Method    string           `json:"mfa_method,omitempty"`
	DeviceID  string           `json:"mfa_device_id,omitempty"`
	Timestamp *jwt.NumericDate `json:"mfa_timestamp,omitempty"`
}

// Claims is the payload of every token this service issues. User tokens
// carry tenant, scopes and roles; service tokens carry the target service
// and the operation allowlist instead.
type Claims struct {
	TokenType string   `json:"type"`
	TenantID  string   `json:"tenant_id,omitempty"`
	SessionID string   `json:"sid,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	Roles     []string `json:"roles,omitempty"`

	TargetService     string   `json:"target_service,omitempty"`
	AllowedOperations []string `json:"allowed_operations,omitempty"`
	IdentityID        string   `json:"identity_id,omitempty"`

	MFAClaims
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// IsService reports whether this is a service-to-service token.
func (c *Claims) IsService() bool {
	return c.TokenType == TypeService
}

// HasScope reports whether the token carries the scope, or the "*" scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// HasRole reports whether the token carries the role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsMFATokenValid reports whether the token carries a verified MFA assertion
// no older than maxAge. Tokens without MFA claims are never valid.
func IsMFATokenValid(c *Claims, maxAge time.Duration) bool {
	return IsMFAValidAt(c, maxAge, time.Now())
}

// IsMFAValidAt is IsMFATokenValid evaluated against an explicit instant.
func IsMFAValidAt(c *Claims, maxAge time.Duration, at time.Time) bool {
	if c == nil || !c.Verified || c.Timestamp == nil {
		return false
	}
	return at.Sub(c.Timestamp.Time) <= maxAge
}
