// Package contextkeys is the one place request-scoped context keys are
// defined. Everything that rides a request context is keyed here, so
// producers and consumers of a value cannot drift apart.
//
//	ctx = contextkeys.WithRequestContext(ctx, rc)
//	rc, ok := ctx.Value(contextkeys.RequestContextKey).(edge.RequestContext)
package contextkeys

import "context"

// Key namespaces context values; a named type cannot collide with other
// packages' string keys.
type Key string

const (
	// RequestContextKey carries the full edge.RequestContext identity.
	// Set by the edge middleware, read by any handler that needs the
	// established identity.
	RequestContextKey Key = "request_context"

	// RequestIDKey carries the per-request UUID. Set by the edge
	// middleware, read by log enrichment and audit events.
	RequestIDKey Key = "request_id"

	// UserIDKey carries the authenticated user id, set once credential
	// verification succeeds.
	UserIDKey Key = "user_id"

	// TenantIDKey carries the tenant of the authenticated identity.
	TenantIDKey Key = "tenant_id"

	// LoggerKey carries an *observability.Logger.
	LoggerKey Key = "logger"
)

// WithRequestContext stores the identity value established by the edge
// authority. The value is typed as any so this package imports nothing
// above it.
func WithRequestContext(ctx context.Context, rc any) context.Context {
	return context.WithValue(ctx, RequestContextKey, rc)
}

// WithRequestID stores the per-request UUID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID stores the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithTenantID stores the tenant id.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithLogger stores a request-scoped logger, typed as any for the same
// layering reason as WithRequestContext.
func WithLogger(ctx context.Context, logger any) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

func stringValue(ctx context.Context, key Key) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// GetRequestID returns the request id, or "" before the middleware ran.
func GetRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }

// GetUserID returns the authenticated user id, or "" for anonymous
// requests.
func GetUserID(ctx context.Context) string { return stringValue(ctx, UserIDKey) }

// GetTenantID returns the tenant id, or "" when the identity carries none.
func GetTenantID(ctx context.Context) string { return stringValue(ctx, TenantIDKey) }
