package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/httputil"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/permission"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/rbac"
)

// RBACHandlers handles role, assignment and permission-check requests.
type RBACHandlers struct {
	rbac *rbac.Engine
}

// NewRBACHandlers creates a new RBAC handlers instance.
func NewRBACHandlers(engine *rbac.Engine) *RBACHandlers {
	return &RBACHandlers{rbac: engine}
}

// RegisterRoutes registers RBAC routes.
func (h *RBACHandlers) RegisterRoutes(router *mux.Router) {
	// Role routes
	router.HandleFunc("/auth/roles", h.createRole).Methods("POST")
	router.HandleFunc("/auth/roles", h.listRoles).Methods("GET")
	router.HandleFunc("/auth/roles/{name}", h.getRole).Methods("GET")
	router.HandleFunc("/auth/roles/{name}", h.removeRole).Methods("DELETE")

	// Assignment routes
	router.HandleFunc("/auth/users/{user_id}/roles", h.assignRole).Methods("POST")
	router.HandleFunc("/auth/users/{user_id}/roles", h.listUserRoles).Methods("GET")
	router.HandleFunc("/auth/users/{user_id}/roles/{role}", h.revokeRole).Methods("DELETE")
	router.HandleFunc("/auth/users/{user_id}/permissions", h.listUserPermissions).Methods("GET")

	// Decision and registry maintenance routes
	router.HandleFunc("/auth/permissions/check", h.checkPermission).Methods("POST")
	router.HandleFunc("/auth/rbac/stats", h.stats).Methods("GET")
	router.HandleFunc("/auth/rbac/cache/invalidate", h.invalidateCache).Methods("POST")
	router.HandleFunc("/auth/rbac/config", h.exportConfig).Methods("GET")
	router.HandleFunc("/auth/rbac/config", h.importConfig).Methods("PUT")
}

// roleResponse is a role definition plus the system flag, which the config
// form intentionally omits.
type roleResponse struct {
	rbac.RoleDefinition
	IsSystem bool `json:"is_system"`
}

func toRoleResponse(role *permission.Role) roleResponse {
	def := rbac.RoleDefinition{
		Name:        role.Name,
		Description: role.Description,
		ParentRoles: role.ParentRoles,
		TenantID:    role.TenantID,
	}
	for _, p := range role.Permissions {
		def.Permissions = append(def.Permissions, rbac.PermissionDefinition{
			Action:     p.Action(),
			Resource:   p.Resource(),
			Conditions: p.Conditions(),
		})
	}
	return roleResponse{RoleDefinition: def, IsSystem: role.IsSystem}
}

// createRole handles POST /auth/roles
func (h *RBACHandlers) createRole(w http.ResponseWriter, r *http.Request) {
	var req rbac.RoleDefinition

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	role := &permission.Role{
		Name:        req.Name,
		Description: req.Description,
		ParentRoles: req.ParentRoles,
		TenantID:    req.TenantID,
	}
	for _, pd := range req.Permissions {
		p, err := permission.New(pd.Action, pd.Resource, pd.Conditions)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid permission: "+err.Error())
			return
		}
		role.Permissions = append(role.Permissions, p)
	}

	if err := h.rbac.AddRole(role); err != nil {
		writeRoleError(w, err)
		return
	}

	stored, err := h.rbac.Role(req.Name)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, toRoleResponse(stored))
}

// listRoles handles GET /auth/roles
func (h *RBACHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := h.rbac.Roles()

	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"roles": out,
		"count": len(out),
	})
}

// getRole handles GET /auth/roles/{name}
func (h *RBACHandlers) getRole(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	role, err := h.rbac.Role(vars["name"])
	if err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteSuccess(w, toRoleResponse(role))
}

// removeRole handles DELETE /auth/roles/{name}
func (h *RBACHandlers) removeRole(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	if err := h.rbac.RemoveRole(vars["name"]); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// assignRole handles POST /auth/users/{user_id}/roles
func (h *RBACHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	var req struct {
		Role string `json:"role"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}

	if err := h.rbac.AssignRole(vars["user_id"], req.Role); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": vars["user_id"],
		"roles":   h.rbac.UserRoles(vars["user_id"], false),
	})
}

// revokeRole handles DELETE /auth/users/{user_id}/roles/{role}
func (h *RBACHandlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	if err := h.rbac.RevokeRole(vars["user_id"], vars["role"]); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// listUserRoles handles GET /auth/users/{user_id}/roles
func (h *RBACHandlers) listUserRoles(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	includeInherited, err := httputil.ParseQueryBool(r, "include_inherited", false)
	if err != nil {
		httputil.WriteBadRequest(w, "include_inherited must be a boolean")
		return
	}

	roles := h.rbac.UserRoles(vars["user_id"], includeInherited)

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id": vars["user_id"],
		"roles":   roles,
	})
}

// listUserPermissions handles GET /auth/users/{user_id}/permissions
func (h *RBACHandlers) listUserPermissions(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)

	perms := h.rbac.EffectivePermissions(vars["user_id"])

	out := make([]rbac.PermissionDefinition, 0, len(perms))
	for _, p := range perms {
		out = append(out, rbac.PermissionDefinition{
			Action:     p.Action(),
			Resource:   p.Resource(),
			Conditions: p.Conditions(),
		})
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":     vars["user_id"],
		"permissions": out,
	})
}

// checkPermission handles POST /auth/permissions/check
//
// With roles present the check runs against that role set directly; with
// a user_id it runs against the user's assignments through the decision
// cache.
func (h *RBACHandlers) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string   `json:"user_id"`
		Roles    []string `json:"roles"`
		Action   string   `json:"action"`
		Resource string   `json:"resource"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Action, "action") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Resource, "resource") {
		return
	}

	var allowed bool
	switch {
	case len(req.Roles) > 0:
		allowed = h.rbac.CheckRolePermission(req.Roles, req.Action, req.Resource)
	case req.UserID != "":
		allowed = h.rbac.CheckPermission(req.UserID, req.Action, req.Resource)
	default:
		httputil.WriteBadRequest(w, "either user_id or roles is required")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"allowed": allowed,
	})
}

// stats handles GET /auth/rbac/stats
func (h *RBACHandlers) stats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.rbac.Stats())
}

// invalidateCache handles POST /auth/rbac/cache/invalidate
func (h *RBACHandlers) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.UserID != "" {
		h.rbac.InvalidateUserCache(req.UserID)
	} else {
		h.rbac.InvalidateCache()
	}

	httputil.WriteNoContent(w)
}

// exportConfig handles GET /auth/rbac/config
func (h *RBACHandlers) exportConfig(w http.ResponseWriter, r *http.Request) {
	if httputil.ParseQueryString(r, "format", "json") == "yaml" {
		data, err := h.rbac.ExportYAML()
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	httputil.WriteSuccess(w, h.rbac.ExportConfig())
}

// importConfig handles PUT /auth/rbac/config
//
// The import is atomic; a rejected config leaves the registry unchanged.
func (h *RBACHandlers) importConfig(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			httputil.WriteBadRequest(w, "failed to read request body")
			return
		}
		if err := h.rbac.ImportYAML(data); err != nil {
			writeRoleError(w, err)
			return
		}
		httputil.WriteNoContent(w)
		return
	}

	var cfg rbac.RoleConfig
	if !httputil.ParseJSONOrError(w, r, &cfg) {
		return
	}
	if err := h.rbac.ImportConfig(&cfg); err != nil {
		writeRoleError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// writeRoleError maps RBAC sentinels onto HTTP statuses.
func writeRoleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrRoleNotFound):
		httputil.WriteNotFoundError(w, "role not found")
	case errors.Is(err, rbac.ErrSystemRole):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, rbac.ErrCycleDetected):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, rbac.ErrInvalidRole), errors.Is(err, rbac.ErrSelfParent):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
