// Package middleware provides client-level HTTP throttling for endpoints
// that run before any credential is established.
//
// # Overview
//
// Authenticated traffic is metered per credential by the API key engine and
// authorized by the edge middleware. What remains exposed is the
// unauthenticated surface, token issuance and refresh above all, where the
// only stable identity is the client address. ClientRateLimiter throttles
// that surface over a quota.Counter:
//
//	limiter := middleware.NewClientRateLimiter(counter, 60, quota.WindowMinute)
//	router.Use(limiter.Middleware)
//
// With a memory counter the limits are per process; handing the limiter a
// redis counter shares them across every instance without further changes.
//
// Denied requests get 429 with Retry-After; every metered response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset. A counter
// backend outage fails open, because refusing all logins when redis is down
// is a worse failure than briefly losing the throttle.
//
// # Related Packages
//
//   - pkg/quota: the windowed counter underneath
//   - pkg/edge: authorization for authenticated routes
//   - pkg/httputil: generic middleware (recovery, body caps, chaining)
package middleware
