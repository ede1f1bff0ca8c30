package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/permission"
)

// Engine owns the role registry, user assignments and the decision cache.
// One engine is constructed at startup and passed by handle to every caller;
// there is no package-level instance.
type Engine struct {
	mu          sync.RWMutex
	roles       map[string]*permission.Role
	assignments map[string]map[string]struct{}
	cache       *decisionCache
	audit       audit.Logger
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithCacheSize bounds the decision cache. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cache = newDecisionCache(n)
	}
}

// WithAuditLogger wires an audit sink for role changes and denied checks.
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.audit = l
		}
	}
}

// NewEngine creates an engine seeded with the system roles.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		roles:       make(map[string]*permission.Role),
		assignments: make(map[string]map[string]struct{}),
		cache:       newDecisionCache(DefaultCacheSize),
		audit:       audit.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range permission.SystemRoles() {
		e.roles[r.Name] = r
	}
	return e
}

// AddRole defines or redefines a role. Redefining a system role is rejected;
// parents that would make the graph cyclic are rejected with the registry
// unchanged. Any accepted change invalidates the whole decision cache because
// inheritance can alter effective permissions for any user.
func (e *Engine) AddRole(role *permission.Role) error {
	if role == nil {
		return fmt.Errorf("%w: nil role", ErrInvalidRole)
	}
	r := role.Clone()
	if err := r.Normalize(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRole, err)
	}

	e.mu.Lock()
	if existing, ok := e.roles[r.Name]; ok && existing.IsSystem {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSystemRole, r.Name)
	}
	// Callers cannot mint new system roles.
	r.IsSystem = false
	if e.wouldCycleLocked(r.Name, r.ParentRoles) {
		e.mu.Unlock()
		return fmt.Errorf("%w: via role %q", ErrCycleDetected, r.Name)
	}
	e.cache.clear()
	e.roles[r.Name] = r
	e.mu.Unlock()

	e.audit.LogAuthorization(context.Background(), audit.EventTypeAuthzRoleChange, "", audit.ResourceTypeRole, r.Name, audit.EventStatusSuccess, "role defined")
	return nil
}

// RemoveRole deletes a role, detaching it from every user assignment and
// from other roles' parent sets.
func (e *Engine) RemoveRole(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))

	e.mu.Lock()
	role, ok := e.roles[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrRoleNotFound, name)
	}
	if role.IsSystem {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSystemRole, name)
	}
	e.cache.clear()
	delete(e.roles, name)
	for userID, set := range e.assignments {
		if _, assigned := set[name]; assigned {
			delete(set, name)
			if len(set) == 0 {
				delete(e.assignments, userID)
			}
		}
	}
	for _, r := range e.roles {
		r.ParentRoles = removeString(r.ParentRoles, name)
	}
	e.mu.Unlock()

	e.audit.LogAuthorization(context.Background(), audit.EventTypeAuthzRoleChange, "", audit.ResourceTypeRole, name, audit.EventStatusSuccess, "role removed")
	return nil
}

// Role returns a copy of one role definition.
func (e *Engine) Role(name string) (*permission.Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	e.mu.RLock()
	defer e.mu.RUnlock()
	role, ok := e.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, name)
	}
	return role.Clone(), nil
}

// Roles returns copies of every role definition, sorted by name.
func (e *Engine) Roles() []*permission.Role {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*permission.Role, 0, len(e.roles))
	for _, r := range e.roles {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AssignRole grants a role to a user. Assignments are last-write-wins and
// idempotent; only the user's cache entries are invalidated.
func (e *Engine) AssignRole(userID, roleName string) error {
	roleName = strings.ToLower(strings.TrimSpace(roleName))
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidRole)
	}

	e.mu.Lock()
	if _, ok := e.roles[roleName]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrRoleNotFound, roleName)
	}
	set, ok := e.assignments[userID]
	if !ok {
		set = make(map[string]struct{})
		e.assignments[userID] = set
	}
	set[roleName] = struct{}{}
	e.cache.invalidateUser(userID)
	e.mu.Unlock()

	e.audit.LogAuthorization(context.Background(), audit.EventTypeAuthzRoleAssigned, userID, audit.ResourceTypeRole, roleName, audit.EventStatusSuccess, "role assigned")
	return nil
}

// RevokeRole removes a role from a user. Revoking a role the user does not
// hold is a no-op. Removal of the user's last role clears the user entry.
func (e *Engine) RevokeRole(userID, roleName string) error {
	roleName = strings.ToLower(strings.TrimSpace(roleName))

	e.mu.Lock()
	if _, ok := e.roles[roleName]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrRoleNotFound, roleName)
	}
	if set, ok := e.assignments[userID]; ok {
		delete(set, roleName)
		if len(set) == 0 {
			delete(e.assignments, userID)
		}
	}
	e.cache.invalidateUser(userID)
	e.mu.Unlock()

	e.audit.LogAuthorization(context.Background(), audit.EventTypeAuthzRoleRevoked, userID, audit.ResourceTypeRole, roleName, audit.EventStatusSuccess, "role revoked")
	return nil
}

// UserRoles returns the user's role names, sorted. With includeInherited the
// set is the transitive closure over parent roles; the walk tolerates a
// cycle even though insertion should have prevented it.
func (e *Engine) UserRoles(userID string, includeInherited bool) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	direct := e.assignments[userID]
	if len(direct) == 0 {
		return nil
	}
	if !includeInherited {
		out := make([]string, 0, len(direct))
		for name := range direct {
			out = append(out, name)
		}
		sort.Strings(out)
		return out
	}

	names := make([]string, 0, len(direct))
	for name := range direct {
		names = append(names, name)
	}
	closure := e.collectRolesLocked(names)
	out := make([]string, 0, len(closure))
	for name := range closure {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CheckPermission reports whether the user may perform action on resource,
// consulting the decision cache first.
func (e *Engine) CheckPermission(userID, action, resource string) bool {
	q := permission.NewQuery(action, resource)
	key := cacheKey(userID, q)

	e.mu.RLock()
	if allowed, ok := e.cache.get(key); ok {
		e.mu.RUnlock()
		return allowed
	}
	allowed := e.evaluateUserLocked(userID, q)
	e.cache.put(key, allowed)
	e.mu.RUnlock()

	if !allowed {
		e.auditDenied(userID, q)
	}
	return allowed
}

// CheckPermissionUncached evaluates directly against the role graph.
func (e *Engine) CheckPermissionUncached(userID, action, resource string) bool {
	q := permission.NewQuery(action, resource)

	e.mu.RLock()
	allowed := e.evaluateUserLocked(userID, q)
	e.mu.RUnlock()

	if !allowed {
		e.auditDenied(userID, q)
	}
	return allowed
}

// CheckRolePermission evaluates a permission against an explicit role list,
// the channel used for token claims. Results are not cached: claims-derived
// role sets do not map to a stable user key.
func (e *Engine) CheckRolePermission(roleNames []string, action, resource string) bool {
	q := permission.NewQuery(action, resource)
	names := make([]string, 0, len(roleNames))
	for _, n := range roleNames {
		names = append(names, strings.ToLower(strings.TrimSpace(n)))
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return evaluate(e.collectRolesLocked(names), q)
}

// EffectivePermissions returns the union of the user's direct and inherited
// permissions, deduplicated.
func (e *Engine) EffectivePermissions(userID string) []permission.Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()

	direct := e.assignments[userID]
	if len(direct) == 0 {
		return nil
	}
	names := make([]string, 0, len(direct))
	for name := range direct {
		names = append(names, name)
	}

	seen := make(map[string]struct{})
	var out []permission.Permission
	for _, role := range e.collectRolesLocked(names) {
		for _, p := range role.Permissions {
			if _, dup := seen[p.Key()]; dup {
				continue
			}
			seen[p.Key()] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// InvalidateUserCache drops cached decisions for one user.
func (e *Engine) InvalidateUserCache(userID string) {
	e.cache.invalidateUser(userID)
}

// InvalidateCache drops every cached decision.
func (e *Engine) InvalidateCache() {
	e.cache.clear()
}

// Stats describes the engine's current shape for metrics export.
type Stats struct {
	Roles          int   `json:"roles"`
	AssignedUsers  int   `json:"assigned_users"`
	CacheSize      int   `json:"cache_size"`
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	CacheEvictions int64 `json:"cache_evictions"`
}

// Stats returns a snapshot of registry and cache counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	roles := len(e.roles)
	users := len(e.assignments)
	e.mu.RUnlock()

	hits, misses, evictions := e.cache.stats()
	return Stats{
		Roles:          roles,
		AssignedUsers:  users,
		CacheSize:      e.cache.len(),
		CacheHits:      hits,
		CacheMisses:    misses,
		CacheEvictions: evictions,
	}
}

// wouldCycleLocked walks parent links from each proposed parent; reaching
// name again means the insertion would close a cycle.
func (e *Engine) wouldCycleLocked(name string, parents []string) bool {
	visited := make(map[string]struct{})
	var walk func(n string) bool
	walk = func(n string) bool {
		if n == name {
			return true
		}
		if _, seen := visited[n]; seen {
			return false
		}
		visited[n] = struct{}{}
		role, ok := e.roles[n]
		if !ok {
			return false
		}
		for _, p := range role.ParentRoles {
			if walk(p) {
				return true
			}
		}
		return false
	}
	for _, p := range parents {
		if walk(p) {
			return true
		}
	}
	return false
}

// collectRolesLocked resolves the transitive closure of the named roles.
// Unknown names are skipped; the visited set guards against cycles.
func (e *Engine) collectRolesLocked(names []string) map[string]*permission.Role {
	out := make(map[string]*permission.Role)
	var walk func(n string)
	walk = func(n string) {
		if _, seen := out[n]; seen {
			return
		}
		role, ok := e.roles[n]
		if !ok {
			return
		}
		out[n] = role
		for _, p := range role.ParentRoles {
			walk(p)
		}
	}
	for _, n := range names {
		walk(n)
	}
	return out
}

func (e *Engine) evaluateUserLocked(userID string, q permission.Permission) bool {
	direct := e.assignments[userID]
	if len(direct) == 0 {
		return false
	}
	names := make([]string, 0, len(direct))
	for name := range direct {
		names = append(names, name)
	}
	return evaluate(e.collectRolesLocked(names), q)
}

// evaluate tests the query against every permission in the role set, exact
// grants first, then wildcard-bearing, then pattern-bearing.
func evaluate(roles map[string]*permission.Role, q permission.Permission) bool {
	for _, pass := range []permission.Kind{permission.KindLiteral, permission.KindWildcard, permission.KindPattern} {
		for _, role := range roles {
			for _, p := range role.Permissions {
				if p.Exactness() != pass {
					continue
				}
				if p.Matches(q) {
					return true
				}
			}
		}
	}
	return false
}

func (e *Engine) auditDenied(userID string, q permission.Permission) {
	e.audit.LogAuthorization(context.Background(), audit.EventTypeAuthzPermissionDenied, userID, audit.ResourceTypeRole, q.String(), audit.EventStatusDenied, "permission denied")
}

func cacheKey(userID string, q permission.Permission) string {
	return userID + ":" + q.Action() + ":" + q.Resource()
}

func removeString(list []string, name string) []string {
	out := list[:0]
	for _, s := range list {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}
