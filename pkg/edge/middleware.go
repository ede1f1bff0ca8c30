package edge

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/contextkeys"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/httputil"
)

// Middleware enforces the authority on every request the wrapped handler
// receives. Allowed requests proceed with the established identity and the
// request-scoped audit fields attached to the request context, so audit
// events emitted by the engines downstream carry the caller and route.
// Denials are answered directly as JSON. The request ID is echoed on every
// response, allowed or not.
func (a *Authority) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := a.Authorize(r.Context(), r)
			if decision != nil && decision.Context.RequestID != "" {
				w.Header().Set(HeaderRequestID, decision.Context.RequestID)
			}
			if err != nil {
				writeDenial(w, err)
				return
			}

			rc := decision.Context
			ctx := WithRequestContext(r.Context(), rc)
			ctx = contextkeys.WithRequestID(ctx, rc.RequestID)
			if rc.UserID != "" {
				ctx = contextkeys.WithUserID(ctx, rc.UserID)
			}
			if rc.TenantID != "" {
				ctx = contextkeys.WithTenantID(ctx, rc.TenantID)
			}
			info := audit.RequestInfoFromHTTP(r, rc.RequestID)
			info.UserID = rc.UserID
			info.TenantID = rc.TenantID
			ctx = audit.WithRequestInfo(ctx, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type denialBody struct {
	Error *AuthError `json:"error"`
}

// writeDenial renders an authorization failure. Anything that is not an
// *AuthError is reported as misconfiguration rather than leaked to the
// caller.
func writeDenial(w http.ResponseWriter, err error) {
	e, ok := err.(*AuthError)
	if !ok {
		e = configurationError("authorization failed")
	}
	if e.Code == CodeRateLimitExceeded {
		if reset, ok := e.Details["reset_at"]; ok {
			if t, perr := time.Parse(time.RFC3339, reset); perr == nil {
				w.Header().Set("Retry-After", t.UTC().Format(http.TimeFormat))
			}
		}
	}
	_ = httputil.WriteJSON(w, e.HTTP, denialBody{Error: e})
}
