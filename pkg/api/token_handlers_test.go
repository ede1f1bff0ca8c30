package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenRouter(t *testing.T) (*mux.Router, *TokenHandlers) {
	t.Helper()
	handlers := NewTokenHandlers(newTestTokenService(t), newTestSessionManager())
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return router, handlers
}

// TestNewTokenHandlers verifies handler initialization
func TestNewTokenHandlers(t *testing.T) {
	handlers := NewTokenHandlers(newTestTokenService(t), newTestSessionManager())

	assert.NotNil(t, handlers)
	assert.NotNil(t, handlers.tokens)
	assert.NotNil(t, handlers.sessions)
}

// TestTokenHandlers_Routes verifies all token routes are registered
func TestTokenHandlers_Routes(t *testing.T) {
	router, _ := newTokenRouter(t)

	assertRoutes(t, router, []struct {
		method string
		path   string
	}{
		{"POST", "/auth/tokens"},
		{"POST", "/auth/tokens/refresh"},
		{"POST", "/auth/tokens/verify"},
		{"DELETE", "/auth/tokens"},
		{"POST", "/auth/services"},
		{"GET", "/auth/services"},
		{"GET", "/auth/services/billing"},
		{"DELETE", "/auth/services/billing"},
		{"POST", "/auth/service-tokens"},
	})
}

// TestIssueTokens_Success tests a plain token pair issuance
func TestIssueTokens_Success(t *testing.T) {
	router, _ := newTokenRouter(t)

	w, body := doJSON(t, router, "POST", "/auth/tokens", map[string]interface{}{
		"user_id":   "user-42",
		"tenant_id": "tenant-1",
		"scopes":    []string{"read:billing"},
		"roles":     []string{"user"},
	})

	mustStatus(t, w, http.StatusCreated)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.NotContains(t, body, "session_id")
}

// TestIssueTokens_WithSession tests issuance with session creation
func TestIssueTokens_WithSession(t *testing.T) {
	sessions := newTestSessionManager()
	handlers := NewTokenHandlers(newTestTokenService(t), sessions)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	w, body := doJSON(t, router, "POST", "/auth/tokens", map[string]interface{}{
		"user_id":        "user-42",
		"tenant_id":      "tenant-1",
		"create_session": true,
		"metadata":       map[string]string{"device": "cli"},
	})

	mustStatus(t, w, http.StatusCreated)
	sessionID, ok := body["session_id"].(string)
	require.True(t, ok, "session_id missing from response")

	sess, err := sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "user-42", sess.UserID)
	assert.Equal(t, "cli", sess.Metadata["device"])
}

// TestIssueTokens_Validation tests issuance validation
func TestIssueTokens_Validation(t *testing.T) {
	router, _ := newTokenRouter(t)

	w, body := doJSON(t, router, "POST", "/auth/tokens", map[string]interface{}{
		"tenant_id": "tenant-1",
	})

	mustStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, body["error"], "user_id is required")
}

// TestIssueTokens_InvalidJSON tests invalid JSON handling
func TestIssueTokens_InvalidJSON(t *testing.T) {
	router, _ := newTokenRouter(t)

	req := httptest.NewRequest("POST", "/auth/tokens", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestRefreshTokens tests the refresh flow
func TestRefreshTokens(t *testing.T) {
	router, _ := newTokenRouter(t)

	w, body := doJSON(t, router, "POST", "/auth/tokens", map[string]interface{}{
		"user_id": "user-42",
	})
	mustStatus(t, w, http.StatusCreated)

	t.Run("valid refresh token", func(t *testing.T) {
		w, refreshed := doJSON(t, router, "POST", "/auth/tokens/refresh", map[string]interface{}{
			"refresh_token": body["refresh_token"],
		})

		mustStatus(t, w, http.StatusOK)
		assert.NotEmpty(t, refreshed["access_token"])
		assert.NotEqual(t, body["access_token"], refreshed["access_token"])
	})

	t.Run("access token rejected", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/tokens/refresh", map[string]interface{}{
			"refresh_token": body["access_token"],
		})

		mustStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/tokens/refresh", map[string]interface{}{
			"refresh_token": "not-a-token",
		})

		mustStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("missing token", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/tokens/refresh", map[string]interface{}{})

		mustStatus(t, w, http.StatusBadRequest)
	})
}

// TestVerifyToken tests introspection responses
func TestVerifyToken(t *testing.T) {
	router, _ := newTokenRouter(t)

	w, body := doJSON(t, router, "POST", "/auth/tokens", map[string]interface{}{
		"user_id": "user-42",
		"scopes":  []string{"read:billing"},
	})
	mustStatus(t, w, http.StatusCreated)

	t.Run("valid token is active", func(t *testing.T) {
		w, resp := doJSON(t, router, "POST", "/auth/tokens/verify", map[string]interface{}{
			"token": body["access_token"],
		})

		mustStatus(t, w, http.StatusOK)
		assert.Equal(t, true, resp["active"])

		claims, ok := resp["claims"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "user-42", claims["sub"])
	})

	t.Run("garbage is inactive not an error", func(t *testing.T) {
		w, resp := doJSON(t, router, "POST", "/auth/tokens/verify", map[string]interface{}{
			"token": "not-a-token",
		})

		mustStatus(t, w, http.StatusOK)
		assert.Equal(t, false, resp["active"])
		assert.NotEmpty(t, resp["error"])
	})
}

// TestRevokeToken tests revocation end to end
func TestRevokeToken(t *testing.T) {
	router, _ := newTokenRouter(t)

	w, body := doJSON(t, router, "POST", "/auth/tokens", map[string]interface{}{
		"user_id": "user-42",
	})
	mustStatus(t, w, http.StatusCreated)

	w, _ = doJSON(t, router, "DELETE", "/auth/tokens", map[string]interface{}{
		"token": body["access_token"],
	})
	mustStatus(t, w, http.StatusNoContent)

	w, resp := doJSON(t, router, "POST", "/auth/tokens/verify", map[string]interface{}{
		"token": body["access_token"],
	})
	mustStatus(t, w, http.StatusOK)
	assert.Equal(t, false, resp["active"])
}

// TestServiceRegistry tests service identity CRUD
func TestServiceRegistry(t *testing.T) {
	router, _ := newTokenRouter(t)

	w, created := doJSON(t, router, "POST", "/auth/services", map[string]interface{}{
		"name":               "billing",
		"allowed_targets":    []string{"ledger"},
		"allowed_operations": []string{"read", "write"},
	})
	mustStatus(t, w, http.StatusCreated)
	assert.Equal(t, "billing", created["service_name"])
	assert.NotEmpty(t, created["identity_id"])

	t.Run("list includes registration", func(t *testing.T) {
		w, body := doJSON(t, router, "GET", "/auth/services", nil)

		mustStatus(t, w, http.StatusOK)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("get by name", func(t *testing.T) {
		w, body := doJSON(t, router, "GET", "/auth/services/billing", nil)

		mustStatus(t, w, http.StatusOK)
		assert.Equal(t, "billing", body["service_name"])
	})

	t.Run("get unknown", func(t *testing.T) {
		w, _ := doJSON(t, router, "GET", "/auth/services/nope", nil)

		mustStatus(t, w, http.StatusNotFound)
	})

	t.Run("deregister", func(t *testing.T) {
		w, _ := doJSON(t, router, "DELETE", "/auth/services/billing", nil)
		mustStatus(t, w, http.StatusNoContent)

		w, _ = doJSON(t, router, "DELETE", "/auth/services/billing", nil)
		mustStatus(t, w, http.StatusNotFound)
	})
}

// TestIssueServiceToken tests service-to-service token issuance
func TestIssueServiceToken(t *testing.T) {
	router, _ := newTokenRouter(t)

	w, _ := doJSON(t, router, "POST", "/auth/services", map[string]interface{}{
		"name":               "billing",
		"allowed_targets":    []string{"ledger"},
		"allowed_operations": []string{"read"},
	})
	mustStatus(t, w, http.StatusCreated)

	t.Run("allowed target and operation", func(t *testing.T) {
		w, body := doJSON(t, router, "POST", "/auth/service-tokens", map[string]interface{}{
			"service":        "billing",
			"target_service": "ledger",
			"operations":     []string{"read"},
		})

		mustStatus(t, w, http.StatusCreated)
		assert.NotEmpty(t, body["token"])

		claims, ok := body["claims"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "ledger", claims["target_service"])
	})

	t.Run("disallowed target", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/service-tokens", map[string]interface{}{
			"service":        "billing",
			"target_service": "payroll",
			"operations":     []string{"read"},
		})

		mustStatus(t, w, http.StatusForbidden)
	})

	t.Run("disallowed operation", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/service-tokens", map[string]interface{}{
			"service":        "billing",
			"target_service": "ledger",
			"operations":     []string{"delete"},
		})

		mustStatus(t, w, http.StatusForbidden)
	})

	t.Run("unregistered issuer", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/service-tokens", map[string]interface{}{
			"service":        "ghost",
			"target_service": "ledger",
			"operations":     []string{"read"},
		})

		mustStatus(t, w, http.StatusNotFound)
	})
}
