package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/apikey"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/httputil"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
)

// APIKeyHandlers handles API key lifecycle and verification requests.
type APIKeyHandlers struct {
	keys *apikey.Engine
}

// NewAPIKeyHandlers creates a new API key handlers instance.
func NewAPIKeyHandlers(keys *apikey.Engine) *APIKeyHandlers {
	return &APIKeyHandlers{keys: keys}
}

// RegisterRoutes registers API key routes.
func (h *APIKeyHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/apikeys", h.createKey).Methods("POST")
	router.HandleFunc("/auth/apikeys/verify", h.verifyKey).Methods("POST")
	router.HandleFunc("/auth/apikeys/{id}", h.revokeKey).Methods("DELETE")
	router.HandleFunc("/auth/apikeys/{id}/rotate", h.rotateKey).Methods("POST")
	router.HandleFunc("/auth/apikeys/{id}/suspend", h.suspendKey).Methods("POST")
	router.HandleFunc("/auth/apikeys/{id}/activate", h.activateKey).Methods("POST")
	router.HandleFunc("/auth/users/{user_id}/apikeys", h.listUserKeys).Methods("GET")
}

// createKey handles POST /auth/apikeys
//
// The raw key appears in this response and nowhere else; only its hash
// is stored.
func (h *APIKeyHandlers) createKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID            string   `json:"user_id"`
		Name              string   `json:"name"`
		TenantID          string   `json:"tenant_id"`
		Scopes            []string `json:"scopes"`
		RateLimitRequests int      `json:"rate_limit_requests"`
		RateLimitWindow   string   `json:"rate_limit_window"`
		AllowedIPs        []string `json:"allowed_ips"`
		RequireHTTPS      bool     `json:"require_https"`
		TTLSeconds        int64    `json:"ttl_seconds"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	opts := apikey.CreateOptions{
		Name:              req.Name,
		TenantID:          req.TenantID,
		RateLimitRequests: req.RateLimitRequests,
		AllowedIPs:        req.AllowedIPs,
		RequireHTTPS:      req.RequireHTTPS,
		TTL:               time.Duration(req.TTLSeconds) * time.Second,
	}
	if req.RateLimitWindow != "" {
		window, err := quota.ParseWindow(req.RateLimitWindow)
		if err != nil {
			httputil.WriteBadRequest(w, "rate_limit_window must be minute, hour or day")
			return
		}
		opts.RateLimitWindow = window
	}

	key, rawKey, err := h.keys.Create(r.Context(), req.UserID, req.Scopes, opts)
	if err != nil {
		writeKeyError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"key":     key,
		"raw_key": rawKey,
	})
}

// verifyKey handles POST /auth/apikeys/verify
//
// The caller is a gateway forwarding its client's address and transport,
// so IP allowlists and the HTTPS requirement are enforced against the
// original client rather than the gateway itself.
func (h *APIKeyHandlers) verifyKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key       string `json:"key"`
		IPAddress string `json:"ip_address"`
		Secure    bool   `json:"secure"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Key, "key") {
		return
	}

	key, err := h.keys.Authenticate(r.Context(), req.Key, apikey.ClientInfo{
		IPAddress: req.IPAddress,
		Secure:    req.Secure,
	})
	if err != nil {
		writeAuthenticateError(w, err)
		return
	}

	httputil.WriteSuccess(w, key)
}

// revokeKey handles DELETE /auth/apikeys/{id}
func (h *APIKeyHandlers) revokeKey(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	if err := h.keys.Revoke(r.Context(), vars["id"]); err != nil {
		writeKeyError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// rotateKey handles POST /auth/apikeys/{id}/rotate
func (h *APIKeyHandlers) rotateKey(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	key, rawKey, err := h.keys.Rotate(r.Context(), vars["id"])
	if err != nil {
		writeKeyError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"key":     key,
		"raw_key": rawKey,
	})
}

// suspendKey handles POST /auth/apikeys/{id}/suspend
func (h *APIKeyHandlers) suspendKey(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	if err := h.keys.Suspend(r.Context(), vars["id"]); err != nil {
		writeKeyError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// activateKey handles POST /auth/apikeys/{id}/activate
func (h *APIKeyHandlers) activateKey(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	if err := h.keys.Activate(r.Context(), vars["id"]); err != nil {
		writeKeyError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// listUserKeys handles GET /auth/users/{user_id}/apikeys
func (h *APIKeyHandlers) listUserKeys(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	keys, err := h.keys.KeysForUser(r.Context(), vars["user_id"])
	if err != nil {
		writeKeyError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"keys":  keys,
		"count": len(keys),
	})
}

// writeKeyError maps engine sentinels onto HTTP statuses for management
// operations.
func writeKeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apikey.ErrKeyNotFound):
		httputil.WriteNotFoundError(w, "key not found")
	case errors.Is(err, apikey.ErrKeyRevoked),
		errors.Is(err, apikey.ErrKeyExpired),
		errors.Is(err, apikey.ErrKeyNotActive),
		errors.Is(err, apikey.ErrTooManyKeys):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, apikey.ErrInvalidScope):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, apikey.ErrScopeNotAllowed):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, apikey.ErrBackendUnavailable):
		httputil.WriteServiceUnavailable(w, "key backend unavailable")
	default:
		httputil.WriteInternalError(w, err)
	}
}

// writeAuthenticateError maps authentication failures. Key state problems
// collapse into 401 so a rejected caller cannot probe key lifecycle.
func writeAuthenticateError(w http.ResponseWriter, err error) {
	var rateLimited *apikey.RateLimitError
	switch {
	case errors.As(err, &rateLimited):
		retryAfter := int(time.Until(rateLimited.ResetAt).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		httputil.WriteTooManyRequests(w, rateLimited.Error())
	case errors.Is(err, apikey.ErrIPNotAllowed),
		errors.Is(err, apikey.ErrHTTPSRequired):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, apikey.ErrBackendUnavailable):
		httputil.WriteServiceUnavailable(w, "key backend unavailable")
	default:
		httputil.WriteUnauthorized(w, "invalid api key")
	}
}
