package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSelfParent is returned when a role lists itself as a parent.
var ErrSelfParent = errors.New("role lists itself as a parent")

// System role names seeded into every engine.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
	RoleGuest      = "guest"
)

// Role is a named set of permissions plus the roles it inherits from.
// Names are unique and lower-cased; ParentRoles reference other roles by
// name and must keep the role graph acyclic.
type Role struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []Permission `json:"-" yaml:"-"`
	ParentRoles []string     `json:"parent_roles,omitempty" yaml:"parent_roles,omitempty"`
	IsSystem    bool         `json:"is_system" yaml:"is_system"`
	TenantID    string       `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
}

// Normalize lower-cases the role and parent names, removes duplicate
// permissions and parents, and rejects a role that lists itself as a parent.
func (r *Role) Normalize() error {
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
	if r.Name == "" {
		return fmt.Errorf("role name is empty")
	}

	seen := make(map[string]struct{}, len(r.Permissions))
	perms := r.Permissions[:0]
	for _, p := range r.Permissions {
		if p.IsZero() {
			continue
		}
		if _, ok := seen[p.Key()]; ok {
			continue
		}
		seen[p.Key()] = struct{}{}
		perms = append(perms, p)
	}
	r.Permissions = perms

	parentSet := make(map[string]struct{}, len(r.ParentRoles))
	parents := r.ParentRoles[:0]
	for _, name := range r.ParentRoles {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if name == r.Name {
			return fmt.Errorf("role %q: %w", r.Name, ErrSelfParent)
		}
		if _, ok := parentSet[name]; ok {
			continue
		}
		parentSet[name] = struct{}{}
		parents = append(parents, name)
	}
	sort.Strings(parents)
	r.ParentRoles = parents
	return nil
}

// HasPermission reports whether any of the role's direct permissions match
// the query. Inherited permissions are the engine's concern.
func (r *Role) HasPermission(q Permission) bool {
	for _, p := range r.Permissions {
		if p.Matches(q) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to callers.
func (r *Role) Clone() *Role {
	cp := *r
	cp.Permissions = append([]Permission(nil), r.Permissions...)
	cp.ParentRoles = append([]string(nil), r.ParentRoles...)
	return &cp
}

// SystemRoles returns the role definitions seeded at engine construction.
// The set is rebuilt on every call so callers cannot mutate the seeds.
func SystemRoles() []*Role {
	return []*Role{
		{
			Name:        RoleSuperAdmin,
			Description: "Unrestricted access to every action and resource",
			IsSystem:    true,
			Permissions: []Permission{
				MustNew("*", "*", nil),
			},
		},
		{
			Name:        RoleAdmin,
			Description: "User, role, session and API key administration",
			IsSystem:    true,
			ParentRoles: []string{RoleUser},
			Permissions: []Permission{
				MustNew("*", "user", nil),
				MustNew("*", "role", nil),
				MustNew("*", "session", nil),
				MustNew("*", "api_key", nil),
				MustNew("read", "audit_log", nil),
			},
		},
		{
			Name:        RoleUser,
			Description: "Self-service profile, session and API key access",
			IsSystem:    true,
			ParentRoles: []string{RoleGuest},
			Permissions: []Permission{
				MustNew("read", "user", nil),
				MustNew("update", "user", nil),
				MustNew("create", "session", nil),
				MustNew("read", "session", nil),
				MustNew("delete", "session", nil),
				MustNew("create", "api_key", nil),
				MustNew("read", "api_key", nil),
			},
		},
		{
			Name:        RoleGuest,
			Description: "Read-only access to public resources",
			IsSystem:    true,
			Permissions: []Permission{
				MustNew("read", "public", nil),
			},
		},
	}
}

// IsSystemRole reports whether name is one of the seeded role names.
func IsSystemRole(name string) bool {
	switch strings.ToLower(name) {
	case RoleSuperAdmin, RoleAdmin, RoleUser, RoleGuest:
		return true
	}
	return false
}
