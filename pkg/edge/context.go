package edge

import (
	"context"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/contextkeys"
)

// RequestContext is the immutable identity value the edge forwards
// downstream once a request is authorized. Handlers read it instead of
// re-parsing credentials.
type RequestContext struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Roles  []string `json:"roles,omitempty"`
	Scopes []string `json:"scopes,omitempty"`

	IsService   bool   `json:"is_service,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	KeyID       string `json:"key_id,omitempty"`

	MFAVerified bool `json:"mfa_verified,omitempty"`
}

// HasScope reports whether the identity carries the scope. "*" grants
// everything.
func (rc RequestContext) HasScope(scope string) bool {
	for _, s := range rc.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// HasRole reports whether the identity carries the role.
func (rc RequestContext) HasRole(role string) bool {
	for _, r := range rc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Anonymous reports whether the identity belongs to nobody, as on public
// routes.
func (rc RequestContext) Anonymous() bool {
	return rc.UserID == "" && !rc.IsService && rc.KeyID == ""
}

// WithRequestContext attaches the identity value to a context.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return contextkeys.WithRequestContext(ctx, rc)
}

// FromContext retrieves the identity value placed by the edge middleware.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(contextkeys.RequestContextKey).(RequestContext)
	return rc, ok
}
