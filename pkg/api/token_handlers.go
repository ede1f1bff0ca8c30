package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/httputil"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/session"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/token"
)

// TokenHandlers handles token issuance, verification and the service
// identity registry. The session manager is optional; without one,
// issuance requests asking for a session are rejected.
type TokenHandlers struct {
	tokens   *token.Service
	sessions *session.Manager
}

// NewTokenHandlers creates a new token handlers instance.
func NewTokenHandlers(tokens *token.Service, sessions *session.Manager) *TokenHandlers {
	return &TokenHandlers{
		tokens:   tokens,
		sessions: sessions,
	}
}

// RegisterRoutes registers token and service registry routes.
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	// Token routes
	router.HandleFunc("/auth/tokens", h.issueTokens).Methods("POST")
	router.HandleFunc("/auth/tokens/refresh", h.refreshTokens).Methods("POST")
	router.HandleFunc("/auth/tokens/verify", h.verifyToken).Methods("POST")
	router.HandleFunc("/auth/tokens", h.revokeToken).Methods("DELETE")

	// Service identity routes
	router.HandleFunc("/auth/services", h.registerService).Methods("POST")
	router.HandleFunc("/auth/services", h.listServices).Methods("GET")
	router.HandleFunc("/auth/services/{name}", h.getService).Methods("GET")
	router.HandleFunc("/auth/services/{name}", h.deregisterService).Methods("DELETE")
	router.HandleFunc("/auth/service-tokens", h.issueServiceToken).Methods("POST")
}

// issueTokens handles POST /auth/tokens
func (h *TokenHandlers) issueTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string            `json:"user_id"`
		TenantID      string            `json:"tenant_id"`
		Scopes        []string          `json:"scopes"`
		Roles         []string          `json:"roles"`
		CreateSession bool              `json:"create_session"`
		Metadata      map[string]string `json:"metadata"`
		MFAVerified   bool              `json:"mfa_verified"`
		MFAMethod     string            `json:"mfa_method"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	var opts []token.IssueOption
	if req.MFAVerified {
		opts = append(opts, token.WithMFA(token.MFAClaims{
			Verified: true,
			Method:   req.MFAMethod,
		}))
	}

	var sessionID string
	if req.CreateSession {
		if h.sessions == nil {
			httputil.WriteBadRequest(w, "session creation is not available")
			return
		}
		sess, err := h.sessions.Create(r.Context(), req.UserID, req.TenantID, req.Metadata)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		sessionID = sess.ID
		opts = append(opts, token.WithSessionID(sess.ID))
	}

	pair, err := h.tokens.IssuePair(r.Context(), req.UserID, req.TenantID, req.Scopes, req.Roles, opts...)
	if err != nil {
		// A session created for a pair that never materialized must not
		// outlive the request.
		if sessionID != "" {
			_ = h.sessions.Invalidate(r.Context(), sessionID)
		}
		writeTokenError(w, err)
		return
	}

	resp := struct {
		*token.TokenPair
		SessionID string `json:"session_id,omitempty"`
	}{pair, sessionID}
	httputil.WriteCreated(w, resp)
}

// refreshTokens handles POST /auth/tokens/refresh
func (h *TokenHandlers) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RefreshToken, "refresh_token") {
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	httputil.WriteSuccess(w, pair)
}

// verifyToken handles POST /auth/tokens/verify
//
// Introspection-style: an invalid token is a successful lookup with
// active=false, not an error response.
func (h *TokenHandlers) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	claims, err := h.tokens.Verify(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, token.ErrNoSigningKey) {
			httputil.WriteServiceUnavailable(w, "signing keys unavailable")
			return
		}
		httputil.WriteSuccess(w, map[string]interface{}{
			"active": false,
			"error":  err.Error(),
		})
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"active": true,
		"claims": claims,
	})
}

// revokeToken handles DELETE /auth/tokens
func (h *TokenHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	if err := h.tokens.Revoke(r.Context(), req.Token); err != nil {
		writeTokenError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// registerService handles POST /auth/services
func (h *TokenHandlers) registerService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string   `json:"name"`
		AllowedTargets    []string `json:"allowed_targets"`
		AllowedOperations []string `json:"allowed_operations"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	identity, err := h.tokens.RegisterService(r.Context(), req.Name, req.AllowedTargets, req.AllowedOperations)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, identity)
}

// listServices handles GET /auth/services
func (h *TokenHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	identities := h.tokens.ServiceIdentities()

	httputil.WriteSuccess(w, map[string]interface{}{
		"services": identities,
		"count":    len(identities),
	})
}

// getService handles GET /auth/services/{name}
func (h *TokenHandlers) getService(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	identity, err := h.tokens.ServiceIdentityByName(vars["name"])
	if err != nil {
		httputil.WriteNotFoundError(w, "service not registered")
		return
	}

	httputil.WriteSuccess(w, identity)
}

// deregisterService handles DELETE /auth/services/{name}
//
// Outstanding tokens issued by the service stop verifying immediately.
func (h *TokenHandlers) deregisterService(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	if err := h.tokens.DeregisterService(r.Context(), vars["name"]); err != nil {
		httputil.WriteNotFoundError(w, "service not registered")
		return
	}

	httputil.WriteNoContent(w)
}

// issueServiceToken handles POST /auth/service-tokens
func (h *TokenHandlers) issueServiceToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service       string   `json:"service"`
		TargetService string   `json:"target_service"`
		Operations    []string `json:"operations"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Service, "service") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.TargetService, "target_service") {
		return
	}

	signed, claims, err := h.tokens.IssueServiceToken(r.Context(), req.Service, req.TargetService, req.Operations)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrServiceNotRegistered):
			httputil.WriteNotFoundError(w, "service not registered")
		case errors.Is(err, token.ErrTargetNotAllowed), errors.Is(err, token.ErrOperationNotAllowed):
			httputil.WriteForbidden(w, err.Error())
		default:
			writeTokenError(w, err)
		}
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"token":  signed,
		"claims": claims,
	})
}

// writeTokenError maps token service sentinels onto HTTP statuses. Anything
// unrecognized is a server fault.
func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenMalformed),
		errors.Is(err, token.ErrInvalidSignature),
		errors.Is(err, token.ErrInvalidAudience),
		errors.Is(err, token.ErrInvalidIssuer),
		errors.Is(err, token.ErrTokenRevoked),
		errors.Is(err, token.ErrWrongTokenType):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, token.ErrNoSigningKey):
		httputil.WriteServiceUnavailable(w, "signing keys unavailable")
	default:
		httputil.WriteInternalError(w, err)
	}
}
