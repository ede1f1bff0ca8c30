// Package api provides the HTTP management surface over the credential
// engines: token issuance and introspection, session lifecycle, API key
// lifecycle, and role administration.
//
// # Overview
//
// Each concern gets a handlers type (TokenHandlers, SessionHandlers,
// APIKeyHandlers, RBACHandlers) that registers its routes on a gorilla/mux
// router. Server composes all four over a shared router:
//
//	srv := api.NewServer(tokenService, sessionManager, keyEngine, rbacEngine)
//	http.ListenAndServe(":8080", srv)
//
// Handlers translate engine sentinels into HTTP statuses: not-found errors
// become 404, lifecycle conflicts 409, allowlist denials 403, rate limits
// 429 with a Retry-After header, and backend outages 503. Verification
// endpoints are introspection-style; an invalid credential is a successful
// 200 lookup with active=false rather than an error, so a gateway can
// distinguish "credential rejected" from "this service failed".
//
// # Route Protection
//
// The package serves decisions, it does not make them: nothing here
// authenticates the caller. cmd/authd wraps the router with the edge
// middleware so management routes themselves require admin-tier
// credentials.
//
// # Related Packages
//
//   - pkg/token: token service behind the token routes
//   - pkg/session: session manager behind the session routes
//   - pkg/apikey: key engine behind the API key routes
//   - pkg/rbac: role engine behind the role routes
//   - pkg/edge: request authorization for these routes
package api
