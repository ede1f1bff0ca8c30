package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/rbac"
)

func newRBACRouter() (*mux.Router, *rbac.Engine) {
	engine := rbac.NewEngine()
	router := mux.NewRouter()
	NewRBACHandlers(engine).RegisterRoutes(router)
	return router, engine
}

// createSupportRole defines a role granting read access to tickets.
func createSupportRole(t *testing.T, router *mux.Router) {
	t.Helper()
	w, _ := doJSON(t, router, "POST", "/auth/roles", map[string]interface{}{
		"name": "support",
		"permissions": []map[string]interface{}{
			{"action": "read", "resource": "tickets"},
		},
	})
	mustStatus(t, w, http.StatusCreated)
}

// TestNewRBACHandlers verifies handler initialization
func TestNewRBACHandlers(t *testing.T) {
	handlers := NewRBACHandlers(rbac.NewEngine())

	assert.NotNil(t, handlers)
	assert.NotNil(t, handlers.rbac)
}

// TestRBACHandlers_Routes verifies all RBAC routes are registered
func TestRBACHandlers_Routes(t *testing.T) {
	router, _ := newRBACRouter()

	assertRoutes(t, router, []struct {
		method string
		path   string
	}{
		{"POST", "/auth/roles"},
		{"GET", "/auth/roles"},
		{"GET", "/auth/roles/admin"},
		{"DELETE", "/auth/roles/admin"},
		{"POST", "/auth/users/user-42/roles"},
		{"GET", "/auth/users/user-42/roles"},
		{"DELETE", "/auth/users/user-42/roles/admin"},
		{"GET", "/auth/users/user-42/permissions"},
		{"POST", "/auth/permissions/check"},
		{"GET", "/auth/rbac/stats"},
		{"POST", "/auth/rbac/cache/invalidate"},
		{"GET", "/auth/rbac/config"},
		{"PUT", "/auth/rbac/config"},
	})
}

// TestCreateRole tests role definition
func TestCreateRole(t *testing.T) {
	router, _ := newRBACRouter()

	w, body := doJSON(t, router, "POST", "/auth/roles", map[string]interface{}{
		"name":        "Support",
		"description": "ticket triage",
		"permissions": []map[string]interface{}{
			{"action": "read", "resource": "tickets"},
			{"action": "update", "resource": "tickets"},
		},
		"parent_roles": []string{"user"},
	})

	mustStatus(t, w, http.StatusCreated)
	assert.Equal(t, "support", body["name"], "role names are lower-cased")
	assert.Equal(t, false, body["is_system"])

	perms, ok := body["permissions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, perms, 2)
}

// TestCreateRole_Validation tests definition validation
func TestCreateRole_Validation(t *testing.T) {
	router, _ := newRBACRouter()

	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
	}{
		{
			name:           "missing name",
			body:           map[string]interface{}{"description": "x"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid permission pattern",
			body: map[string]interface{}{
				"name": "broken",
				"permissions": []map[string]interface{}{
					{"action": "read[", "resource": "tickets"},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "self parent",
			body: map[string]interface{}{
				"name":         "loop",
				"parent_roles": []string{"loop"},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "system role redefinition",
			body:           map[string]interface{}{"name": "admin"},
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doJSON(t, router, "POST", "/auth/roles", tt.body)

			mustStatus(t, w, tt.expectedStatus)
		})
	}
}

// TestCreateRole_Cycle tests that a parent cycle is rejected as a conflict
func TestCreateRole_Cycle(t *testing.T) {
	router, _ := newRBACRouter()

	w, _ := doJSON(t, router, "POST", "/auth/roles", map[string]interface{}{
		"name": "tier1",
	})
	mustStatus(t, w, http.StatusCreated)

	w, _ = doJSON(t, router, "POST", "/auth/roles", map[string]interface{}{
		"name":         "tier2",
		"parent_roles": []string{"tier1"},
	})
	mustStatus(t, w, http.StatusCreated)

	// Closing the loop tier1 -> tier2 -> tier1 must fail.
	w, _ = doJSON(t, router, "POST", "/auth/roles", map[string]interface{}{
		"name":         "tier1",
		"parent_roles": []string{"tier2"},
	})
	mustStatus(t, w, http.StatusConflict)
}

// TestGetRole tests role lookup
func TestGetRole(t *testing.T) {
	router, _ := newRBACRouter()

	t.Run("system role", func(t *testing.T) {
		w, body := doJSON(t, router, "GET", "/auth/roles/admin", nil)

		mustStatus(t, w, http.StatusOK)
		assert.Equal(t, "admin", body["name"])
		assert.Equal(t, true, body["is_system"])
	})

	t.Run("unknown role", func(t *testing.T) {
		w, _ := doJSON(t, router, "GET", "/auth/roles/nope", nil)

		mustStatus(t, w, http.StatusNotFound)
	})
}

// TestListRoles tests the registry listing
func TestListRoles(t *testing.T) {
	router, _ := newRBACRouter()
	createSupportRole(t, router)

	w, body := doJSON(t, router, "GET", "/auth/roles", nil)

	mustStatus(t, w, http.StatusOK)
	// Four seeded system roles plus the new one.
	assert.Equal(t, float64(5), body["count"])
}

// TestRemoveRole tests role deletion
func TestRemoveRole(t *testing.T) {
	router, _ := newRBACRouter()
	createSupportRole(t, router)

	w, _ := doJSON(t, router, "DELETE", "/auth/roles/support", nil)
	mustStatus(t, w, http.StatusNoContent)

	w, _ = doJSON(t, router, "GET", "/auth/roles/support", nil)
	mustStatus(t, w, http.StatusNotFound)

	t.Run("system role is immune", func(t *testing.T) {
		w, _ := doJSON(t, router, "DELETE", "/auth/roles/admin", nil)

		mustStatus(t, w, http.StatusForbidden)
	})

	t.Run("unknown role", func(t *testing.T) {
		w, _ := doJSON(t, router, "DELETE", "/auth/roles/nope", nil)

		mustStatus(t, w, http.StatusNotFound)
	})
}

// TestAssignRole tests role assignment
func TestAssignRole(t *testing.T) {
	router, _ := newRBACRouter()

	w, body := doJSON(t, router, "POST", "/auth/users/user-42/roles", map[string]interface{}{
		"role": "user",
	})

	mustStatus(t, w, http.StatusOK)
	roles, ok := body["roles"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, roles, "user")

	t.Run("unknown role", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/users/user-42/roles", map[string]interface{}{
			"role": "nope",
		})

		mustStatus(t, w, http.StatusNotFound)
	})

	t.Run("missing role field", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/users/user-42/roles", map[string]interface{}{})

		mustStatus(t, w, http.StatusBadRequest)
	})
}

// TestRevokeRole tests assignment removal
func TestRevokeRole(t *testing.T) {
	router, _ := newRBACRouter()

	w, _ := doJSON(t, router, "POST", "/auth/users/user-42/roles", map[string]interface{}{
		"role": "user",
	})
	mustStatus(t, w, http.StatusOK)

	w, _ = doJSON(t, router, "DELETE", "/auth/users/user-42/roles/user", nil)
	mustStatus(t, w, http.StatusNoContent)

	w, body := doJSON(t, router, "GET", "/auth/users/user-42/roles", nil)
	mustStatus(t, w, http.StatusOK)
	assert.Empty(t, body["roles"])
}

// TestListUserRoles tests direct and inherited listings
func TestListUserRoles(t *testing.T) {
	router, _ := newRBACRouter()
	createSupportRole(t, router)

	w, _ := doJSON(t, router, "POST", "/auth/roles", map[string]interface{}{
		"name":         "support-lead",
		"parent_roles": []string{"support"},
	})
	mustStatus(t, w, http.StatusCreated)

	w, _ = doJSON(t, router, "POST", "/auth/users/user-42/roles", map[string]interface{}{
		"role": "support-lead",
	})
	mustStatus(t, w, http.StatusOK)

	t.Run("direct only", func(t *testing.T) {
		w, body := doJSON(t, router, "GET", "/auth/users/user-42/roles", nil)

		mustStatus(t, w, http.StatusOK)
		assert.Equal(t, []interface{}{"support-lead"}, body["roles"])
	})

	t.Run("inherited closure", func(t *testing.T) {
		w, body := doJSON(t, router, "GET", "/auth/users/user-42/roles?include_inherited=true", nil)

		mustStatus(t, w, http.StatusOK)
		assert.Equal(t, []interface{}{"support", "support-lead"}, body["roles"])
	})
}

// TestListUserPermissions tests the effective permission set
func TestListUserPermissions(t *testing.T) {
	router, _ := newRBACRouter()
	createSupportRole(t, router)

	w, _ := doJSON(t, router, "POST", "/auth/users/user-42/roles", map[string]interface{}{
		"role": "support",
	})
	mustStatus(t, w, http.StatusOK)

	w, body := doJSON(t, router, "GET", "/auth/users/user-42/permissions", nil)

	mustStatus(t, w, http.StatusOK)
	perms, ok := body["permissions"].([]interface{})
	require.True(t, ok)
	require.Len(t, perms, 1)

	first := perms[0].(map[string]interface{})
	assert.Equal(t, "read", first["action"])
	assert.Equal(t, "tickets", first["resource"])
}

// TestCheckPermission tests the decision endpoint
func TestCheckPermission(t *testing.T) {
	router, _ := newRBACRouter()
	createSupportRole(t, router)

	w, _ := doJSON(t, router, "POST", "/auth/users/user-42/roles", map[string]interface{}{
		"role": "support",
	})
	mustStatus(t, w, http.StatusOK)

	tests := []struct {
		name    string
		body    map[string]interface{}
		allowed bool
	}{
		{
			name:    "user allowed",
			body:    map[string]interface{}{"user_id": "user-42", "action": "read", "resource": "tickets"},
			allowed: true,
		},
		{
			name:    "user denied",
			body:    map[string]interface{}{"user_id": "user-42", "action": "delete", "resource": "tickets"},
			allowed: false,
		},
		{
			name:    "unassigned user denied",
			body:    map[string]interface{}{"user_id": "user-99", "action": "read", "resource": "tickets"},
			allowed: false,
		},
		{
			name:    "role set allowed",
			body:    map[string]interface{}{"roles": []string{"support"}, "action": "read", "resource": "tickets"},
			allowed: true,
		},
		{
			name:    "role set denied",
			body:    map[string]interface{}{"roles": []string{"guest"}, "action": "read", "resource": "tickets"},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := doJSON(t, router, "POST", "/auth/permissions/check", tt.body)

			mustStatus(t, w, http.StatusOK)
			assert.Equal(t, tt.allowed, body["allowed"])
		})
	}

	t.Run("neither user nor roles", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/permissions/check", map[string]interface{}{
			"action": "read", "resource": "tickets",
		})

		mustStatus(t, w, http.StatusBadRequest)
	})

	t.Run("missing action", func(t *testing.T) {
		w, _ := doJSON(t, router, "POST", "/auth/permissions/check", map[string]interface{}{
			"user_id": "user-42", "resource": "tickets",
		})

		mustStatus(t, w, http.StatusBadRequest)
	})
}

// TestRBACStats tests the stats snapshot
func TestRBACStats(t *testing.T) {
	router, _ := newRBACRouter()

	w, body := doJSON(t, router, "GET", "/auth/rbac/stats", nil)

	mustStatus(t, w, http.StatusOK)
	assert.Equal(t, float64(4), body["roles"], "system roles are seeded")
	assert.Equal(t, float64(0), body["assigned_users"])
}

// TestInvalidateCacheEndpoint tests both invalidation forms
func TestInvalidateCacheEndpoint(t *testing.T) {
	router, _ := newRBACRouter()

	w, _ := doJSON(t, router, "POST", "/auth/rbac/cache/invalidate", map[string]interface{}{
		"user_id": "user-42",
	})
	mustStatus(t, w, http.StatusNoContent)

	w, _ = doJSON(t, router, "POST", "/auth/rbac/cache/invalidate", map[string]interface{}{})
	mustStatus(t, w, http.StatusNoContent)
}

// TestExportImportConfig tests the registry snapshot round trip
func TestExportImportConfig(t *testing.T) {
	router, _ := newRBACRouter()
	createSupportRole(t, router)

	w, _ := doJSON(t, router, "POST", "/auth/users/user-42/roles", map[string]interface{}{
		"role": "support",
	})
	mustStatus(t, w, http.StatusOK)

	w, exported := doJSON(t, router, "GET", "/auth/rbac/config", nil)
	mustStatus(t, w, http.StatusOK)

	roles, ok := exported["roles"].([]interface{})
	require.True(t, ok)
	require.Len(t, roles, 1, "system roles are not exported")

	t.Run("yaml format", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/auth/rbac/config?format=yaml", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/x-yaml", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "support")
	})

	t.Run("json import replaces registry", func(t *testing.T) {
		fresh, engine := newRBACRouter()

		w, _ := doJSON(t, fresh, "PUT", "/auth/rbac/config", exported)
		mustStatus(t, w, http.StatusNoContent)

		role, err := engine.Role("support")
		require.NoError(t, err)
		assert.Equal(t, "support", role.Name)
		assert.Equal(t, []string{"support"}, engine.UserRoles("user-42", false))
	})

	t.Run("yaml import", func(t *testing.T) {
		fresh, engine := newRBACRouter()

		yamlBody := strings.Join([]string{
			"roles:",
			"  - name: auditor",
			"    permissions:",
			"      - action: read",
			"        resource: \"*\"",
			"assignments:",
			"  user-7: [auditor]",
			"",
		}, "\n")

		req := httptest.NewRequest("PUT", "/auth/rbac/config", bytes.NewReader([]byte(yamlBody)))
		req.Header.Set("Content-Type", "application/x-yaml")
		w := httptest.NewRecorder()
		fresh.ServeHTTP(w, req)

		require.Equal(t, http.StatusNoContent, w.Code, "response body: %s", w.Body.String())
		assert.True(t, engine.CheckPermission("user-7", "read", "tickets"))
	})

	t.Run("invalid import leaves registry unchanged", func(t *testing.T) {
		fresh, engine := newRBACRouter()

		w, _ := doJSON(t, fresh, "PUT", "/auth/rbac/config", map[string]interface{}{
			"roles": []map[string]interface{}{
				{"name": "a", "parent_roles": []string{"b"}},
				{"name": "b", "parent_roles": []string{"a"}},
			},
		})
		mustStatus(t, w, http.StatusConflict)

		_, err := engine.Role("a")
		assert.Error(t, err)
	})
}
