package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/httputil"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/session"
)

// SessionHandlers handles session lifecycle HTTP requests.
type SessionHandlers struct {
	sessions *session.Manager
}

// NewSessionHandlers creates a new session handlers instance.
func NewSessionHandlers(sessions *session.Manager) *SessionHandlers {
	return &SessionHandlers{sessions: sessions}
}

// RegisterRoutes registers session routes.
func (h *SessionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/sessions", h.createSession).Methods("POST")
	router.HandleFunc("/auth/sessions/{id}", h.getSession).Methods("GET")
	router.HandleFunc("/auth/sessions/{id}", h.invalidateSession).Methods("DELETE")
	router.HandleFunc("/auth/sessions/{id}/extend", h.extendSession).Methods("POST")
	router.HandleFunc("/auth/sessions/{id}/flag", h.flagSession).Methods("POST")

	// Per-user session routes
	router.HandleFunc("/auth/users/{user_id}/sessions", h.listUserSessions).Methods("GET")
	router.HandleFunc("/auth/users/{user_id}/sessions", h.invalidateUserSessions).Methods("DELETE")
}

// createSession handles POST /auth/sessions
func (h *SessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string            `json:"user_id"`
		TenantID string            `json:"tenant_id"`
		Metadata map[string]string `json:"metadata"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	sess, err := h.sessions.Create(r.Context(), req.UserID, req.TenantID, req.Metadata)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteCreated(w, sess)
}

// getSession handles GET /auth/sessions/{id}
func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	sess, err := h.sessions.Get(r.Context(), vars["id"])
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteSuccess(w, sess)
}

// invalidateSession handles DELETE /auth/sessions/{id}
func (h *SessionHandlers) invalidateSession(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	if err := h.sessions.Invalidate(r.Context(), vars["id"]); err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// extendSession handles POST /auth/sessions/{id}/extend
func (h *SessionHandlers) extendSession(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	var req struct {
		AdditionalSeconds int64 `json:"additional_seconds"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.AdditionalSeconds, "additional_seconds") {
		return
	}

	sess, err := h.sessions.Extend(r.Context(), vars["id"], time.Duration(req.AdditionalSeconds)*time.Second)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteSuccess(w, sess)
}

// flagSession handles POST /auth/sessions/{id}/flag
//
// A flagged session stops resolving through Get but stays in the store for
// forensics until expiry destroys it.
func (h *SessionHandlers) flagSession(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	if err := h.sessions.MarkSuspicious(r.Context(), vars["id"]); err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// listUserSessions handles GET /auth/users/{user_id}/sessions
func (h *SessionHandlers) listUserSessions(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	sessions, err := h.sessions.ListForUser(r.Context(), vars["user_id"])
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// invalidateUserSessions handles DELETE /auth/users/{user_id}/sessions
//
// The optional ?keep= parameter names a session to spare, for the
// "log out everywhere else" flow.
func (h *SessionHandlers) invalidateUserSessions(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	keep := httputil.ParseQueryString(r, "keep", "")

	invalidated, err := h.sessions.InvalidateUser(r.Context(), vars["user_id"], keep)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"invalidated": invalidated,
	})
}

// writeSessionError maps session manager sentinels onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		httputil.WriteNotFoundError(w, "session not found")
	case errors.Is(err, session.ErrSessionExpired):
		httputil.WriteErrorMessage(w, http.StatusGone, "session expired")
	case errors.Is(err, session.ErrSessionNotActive):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, session.ErrBackendUnavailable):
		httputil.WriteServiceUnavailable(w, "session backend unavailable")
	default:
		httputil.WriteInternalError(w, err)
	}
}
