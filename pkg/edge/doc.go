// Package edge composes the credential verifiers into a single
// authorization decision point for inbound HTTP traffic. One Authority per
// service answers "may this request proceed, and as whom" for every route.
//
// # Overview
//
// Routes are classified into tiers by a RouteTable: public routes skip
// authentication, internal routes demand a service token, and the
// authenticated/sensitive/admin tiers accept a user credential with
// progressively stricter requirements. The Authority matches the request
// against the table, establishes an identity from whichever credential the
// request carries, and enforces the matched rule's scope, role, permission
// and MFA demands.
//
//	routes := edge.MustNewRouteTable(edge.TierAuthenticated,
//		edge.Rule{Path: "/healthz", Tier: edge.TierPublic},
//		edge.Rule{Path: "/api/admin/*", Tier: edge.TierAdmin,
//			RequiredRoles: []string{"admin"}},
//	)
//
//	authority := edge.NewAuthority("billing", routes,
//		edge.WithTokenVerifier(tokens),
//		edge.WithKeyAuthenticator(keys),
//		edge.WithRoleChecker(rbac),
//	)
//
//	router.Use(authority.Middleware())
//
// # Credentials
//
// User credentials are read from the Authorization header (Bearer), the
// session cookie, or the X-Auth-Token header, in that order. A credential
// with the API key prefix is authenticated by the key engine; anything else
// is verified as an access token. Internal routes read the service token
// from X-Service-Token and validate it against this service's name and the
// rule's required operations.
//
// # Denials
//
// Every denial is an *AuthError carrying a stable machine code and the HTTP
// status to answer with. Authentication failures collapse into a small set
// of externally visible messages so that callers cannot distinguish an
// unknown key from a revoked one; rate limiting is the exception and
// discloses the limit and the window reset. Handlers downstream of the
// middleware read the established identity with FromContext.
package edge
