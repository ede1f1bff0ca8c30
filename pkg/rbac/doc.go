// Package rbac implements role-based access control with inheritance,
// wildcard and pattern permissions, and a bounded decision cache.
//
// # Overview
//
// An Engine owns three pieces of state: the role registry, the user
// assignment table and the decision cache. Engines are plain values
// constructed with NewEngine and passed to whoever needs them; nothing in
// this package is process-global, so tests and multi-tenant deployments can
// run as many independent engines as they like.
//
//	engine := rbac.NewEngine(
//		rbac.WithCacheSize(10000),
//		rbac.WithAuditLogger(auditLogger),
//	)
//
//	engine.AddRole(&permission.Role{
//		Name:        "billing-admin",
//		ParentRoles: []string{"user"},
//		Permissions: []permission.Permission{
//			permission.MustNew("*", "invoice", nil),
//			permission.MustNew("read", "payment_.*", nil),
//		},
//	})
//	engine.AssignRole("user-42", "billing-admin")
//
//	if engine.CheckPermission("user-42", "read", "payment_history") {
//		// allowed
//	}
//
// # Roles and Inheritance
//
// Roles form a directed acyclic graph through ParentRoles: a role grants
// its own permissions plus everything reachable through its parents.
// AddRole rejects any definition that would close a cycle and leaves the
// registry untouched. Four system roles (super_admin, admin, user, guest)
// are seeded at construction and cannot be redefined or removed.
//
// # Permission Matching
//
// Permission fields are classified once, at construction, as literal,
// wildcard ("*" or "all") or regex pattern (see package permission).
// Evaluation runs in three passes so that an exact grant always answers
// before a wildcard and a wildcard before a pattern. The first matching
// permission allows; there are no deny rules.
//
// # Decision Cache
//
// CheckPermission results are cached under "user:action:resource" with
// strict FIFO eviction. Any role definition change flushes the whole cache
// before the change becomes visible; assignment changes flush only the
// affected user. A check never returns a decision computed against a
// superseded registry.
//
// # Hot Reload
//
// ExportConfig and ImportConfig round-trip the non-system registry for
// seeding from YAML files, and Watcher applies the file on every change:
//
//	watcher, err := rbac.NewWatcher(engine, "/etc/dotmac/roles.yaml", log)
//	defer watcher.Close()
//
// An import that fails validation is rejected whole; the running registry
// keeps serving the previous definitions.
package rbac
