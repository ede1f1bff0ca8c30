// Package apikey issues and authenticates long-lived scoped API keys with
// windowed rate limiting.
//
// # Overview
//
// Keys are opaque strings of the form dm_<random>. The raw form is handed to
// the caller exactly once at creation or rotation; the engine stores only a
// SHA-256 hash for lookup and the first characters as a display prefix. Log
// lines and audit events carry the prefix, never the raw key.
//
//	engine := apikey.NewEngine(nil, rbacEngine, counter)
//	key, raw, err := engine.Create(ctx, "u1", []string{"read:billing"}, apikey.CreateOptions{
//		RateLimitRequests: 100,
//		RateLimitWindow:   quota.WindowMinute,
//	})
//
// # Authentication Pipeline
//
// Authenticate walks a fixed pipeline: hash lookup, status check, lazy expiry
// transition, IP allow-list, HTTPS requirement, rate limit, usage accounting.
// Each stage fails with its own sentinel so the edge can map outcomes to
// stable codes; rate-limit denials surface a *RateLimitError carrying the
// window and limit.
//
// Rate limiting rides on quota.Counter, so a Redis-backed counter enforces
// one budget across instances. Windows are calendar aligned; a caller can
// burst up to twice its limit across a boundary, which is a known
// characteristic of the scheme.
//
// # Scope Grants
//
// Create validates every requested scope ("action:resource", or "*") against
// the issuing user's own permissions through a PermissionChecker, normally
// the rbac engine. A key can never grant what its creator does not hold.
//
// # Rotation
//
// Rotate mints a replacement under identical policy fields, links it to the
// old record via RotatedFrom and revokes the old key in the same critical
// section. Suspended keys can be reactivated; revoked and expired keys are
// terminal.
package apikey
