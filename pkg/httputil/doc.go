// Package httputil carries the HTTP plumbing shared by the daemon's API
// handlers: JSON response envelopes, request parsing, and the outermost
// middleware.
//
// # Responses
//
// Every body goes out as JSON with Cache-Control: no-store, since
// responses on this surface can carry credential material. Errors use a
// single {"error": "..."} envelope, with one status writer per common
// code:
//
//	httputil.WriteSuccess(w, session)
//	httputil.WriteCreated(w, key)
//	httputil.WriteUnauthorized(w, "token expired")
//	httputil.WriteTooManyRequests(w, "rate limit exceeded")
//
// # Requests
//
// ParseJSON accepts a body when its declared Content-Type is a JSON type
// (an absent header is allowed) and the body holds exactly one JSON
// value. The OrError variant answers 400 on its own:
//
//	var req createSessionRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//
// Path and query access goes through GetPathVars, ParseQueryString and
// ParseQueryBool. RequireNonEmpty and RequirePositive cover the two
// field validations nearly every handler repeats.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// RecoveryMiddleware logs panics through slog and answers 500.
// MaxBytesMiddleware caps request bodies before any handler reads them.
//
// The authorization middleware in pkg/edge fronts these handlers;
// pkg/api builds its routes on the helpers here.
package httputil
