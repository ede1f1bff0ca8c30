package rbac

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/permission"
)

// RoleConfig is the serialized form of the role registry, used for file
// seeding and for export through the admin API.
type RoleConfig struct {
	Roles       []RoleDefinition    `json:"roles" yaml:"roles"`
	Assignments map[string][]string `json:"assignments,omitempty" yaml:"assignments,omitempty"`
}

// RoleDefinition describes one role in config form.
type RoleDefinition struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []PermissionDefinition `json:"permissions" yaml:"permissions"`
	ParentRoles []string               `json:"parent_roles,omitempty" yaml:"parent_roles,omitempty"`
	TenantID    string                 `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
}

// PermissionDefinition describes one permission in config form.
type PermissionDefinition struct {
	Action     string         `json:"action" yaml:"action"`
	Resource   string         `json:"resource" yaml:"resource"`
	Conditions map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// ExportConfig snapshots the non-system roles and all assignments. System
// roles are omitted; they are seeded at construction and never differ
// between engines of the same build.
func (e *Engine) ExportConfig() *RoleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cfg := &RoleConfig{}
	for _, role := range e.roles {
		if role.IsSystem {
			continue
		}
		def := RoleDefinition{
			Name:        role.Name,
			Description: role.Description,
			ParentRoles: append([]string(nil), role.ParentRoles...),
			TenantID:    role.TenantID,
		}
		for _, p := range role.Permissions {
			def.Permissions = append(def.Permissions, PermissionDefinition{
				Action:     p.Action(),
				Resource:   p.Resource(),
				Conditions: p.Conditions(),
			})
		}
		cfg.Roles = append(cfg.Roles, def)
	}
	sort.Slice(cfg.Roles, func(i, j int) bool { return cfg.Roles[i].Name < cfg.Roles[j].Name })

	for userID, set := range e.assignments {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		if cfg.Assignments == nil {
			cfg.Assignments = make(map[string][]string)
		}
		cfg.Assignments[userID] = names
	}
	return cfg
}

// ImportConfig replaces every non-system role and every assignment with the
// given config. The whole config is validated first; on any error the
// registry is left untouched. Entries named after system roles are skipped
// so that exports from older builds replay cleanly.
func (e *Engine) ImportConfig(cfg *RoleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidRole)
	}

	candidates := make(map[string]*permission.Role, len(cfg.Roles))
	for _, def := range cfg.Roles {
		name := strings.ToLower(strings.TrimSpace(def.Name))
		if permission.IsSystemRole(name) {
			continue
		}
		role := &permission.Role{
			Name:        def.Name,
			Description: def.Description,
			ParentRoles: append([]string(nil), def.ParentRoles...),
			TenantID:    def.TenantID,
		}
		for _, pd := range def.Permissions {
			p, err := permission.New(pd.Action, pd.Resource, pd.Conditions)
			if err != nil {
				return fmt.Errorf("%w: role %q: %v", ErrInvalidRole, name, err)
			}
			role.Permissions = append(role.Permissions, p)
		}
		if err := role.Normalize(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRole, err)
		}
		if _, dup := candidates[role.Name]; dup {
			return fmt.Errorf("%w: duplicate role %q", ErrInvalidRole, role.Name)
		}
		candidates[role.Name] = role
	}

	graph := make(map[string][]string, len(candidates)+4)
	for name, role := range candidates {
		graph[name] = role.ParentRoles
	}
	for _, r := range permission.SystemRoles() {
		graph[r.Name] = r.ParentRoles
	}
	if cyclic, at := hasCycle(graph); cyclic {
		return fmt.Errorf("%w: via role %q", ErrCycleDetected, at)
	}

	assignments := make(map[string]map[string]struct{}, len(cfg.Assignments))
	for userID, names := range cfg.Assignments {
		if userID == "" {
			return fmt.Errorf("%w: empty user id in assignments", ErrInvalidRole)
		}
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			name := strings.ToLower(strings.TrimSpace(n))
			if _, known := graph[name]; !known {
				return fmt.Errorf("%w: %q assigned to user %q", ErrRoleNotFound, name, userID)
			}
			set[name] = struct{}{}
		}
		if len(set) > 0 {
			assignments[userID] = set
		}
	}

	e.mu.Lock()
	e.cache.clear()
	for name, role := range e.roles {
		if !role.IsSystem {
			delete(e.roles, name)
		}
	}
	for name, role := range candidates {
		e.roles[name] = role
	}
	e.assignments = assignments
	e.mu.Unlock()
	return nil
}

// ExportYAML renders the current registry as YAML.
func (e *Engine) ExportYAML() ([]byte, error) {
	return yaml.Marshal(e.ExportConfig())
}

// ImportYAML parses and applies a YAML registry snapshot.
func (e *Engine) ImportYAML(data []byte) error {
	var cfg RoleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	return e.ImportConfig(&cfg)
}

// hasCycle runs a colored DFS over the parent graph. Parents that are not
// nodes of the graph terminate the walk; they resolve to nothing at
// evaluation time and cannot close a cycle.
func hasCycle(graph map[string][]string) (bool, string) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(graph))
	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		for _, p := range graph[n] {
			if _, ok := graph[p]; !ok {
				continue
			}
			switch color[p] {
			case gray:
				return true
			case white:
				if visit(p) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}
	names := make([]string, 0, len(graph))
	for n := range graph {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if color[n] == white && visit(n) {
			return true, n
		}
	}
	return false, ""
}
