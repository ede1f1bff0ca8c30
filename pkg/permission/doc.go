// Package permission defines the permission and role value types used by the
// dotmac authorization engine.
//
// # Overview
//
// A Permission pairs an action with a resource, each of which may be a literal
// ("read"), the wildcard "*" (or "all"), or a regular expression ("^users/[0-9]+$").
// The field kind is classified once at construction, so matching never re-inspects
// the raw string. Matching is symmetric: a wildcard or pattern on either side of
// the comparison satisfies it.
//
//	p := permission.MustNew("read", "user", nil)
//	q := permission.NewQuery("read", "user")
//	p.Matches(q) // true
//
// A Role names a set of permissions plus the roles it inherits from. Roles form
// a directed acyclic graph through ParentRoles; cycle checks are the engine's
// responsibility at insertion time.
//
// # System Roles
//
// Four roles ship with every engine and cannot be removed or redefined:
//
//	super_admin - wildcard access to everything
//	admin       - user, role, session and API key administration
//	user        - self-service profile, session and API key access
//	guest       - read-only access to public resources
package permission
