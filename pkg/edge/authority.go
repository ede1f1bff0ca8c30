package edge

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/apikey"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/session"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/token"
)

// Default header and cookie names used to carry credentials. All of them can
// be overridden with Authority options.
const (
	DefaultCookieName   = "dm_session"
	DefaultTenantHeader = "X-Tenant-ID"

	HeaderAuthToken    = "X-Auth-Token"
	HeaderServiceToken = "X-Service-Token"
	HeaderRequestID    = "X-Request-ID"

	// tenantRouteVar is the gorilla/mux path variable consulted when no
	// tenant header is present, e.g. /api/tenants/{tenant_id}/users.
	tenantRouteVar = "tenant_id"
)

// TokenVerifier validates a bearer token and returns its claims.
// *token.Service satisfies this interface.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*token.Claims, error)
}

// ServiceVerifier validates a service-to-service token against the receiving
// service's name and the operations a route demands. *token.Service satisfies
// this interface.
type ServiceVerifier interface {
	VerifyServiceToken(ctx context.Context, tokenString, expectedTarget string, requiredOperations []string) (*token.Claims, error)
}

// KeyAuthenticator validates a raw API key together with the caller's
// transport attributes. *apikey.Engine satisfies this interface.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string, client apikey.ClientInfo) (*apikey.Key, error)
}

// RoleChecker answers whether any of the named roles grants an
// action/resource pair. *rbac.Engine satisfies this interface.
type RoleChecker interface {
	CheckRolePermission(roleNames []string, action, resource string) bool
}

// SessionChecker resolves a session by ID so that tokens bound to a revoked
// session can be rejected before their natural expiry. *session.Manager
// satisfies this interface.
type SessionChecker interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Decision is the outcome of an authorization check. When Allowed is false
// the accompanying error explains the denial; Context is still populated with
// whatever identity was established before the check failed.
type Decision struct {
	Allowed bool
	Tier    Tier
	Rule    Rule
	Context RequestContext
}

// Observer sees every decision after it is made, with the denial (nil when
// allowed) and the evaluation latency. Wired by the host process for
// metrics; it runs on the request path and must not block.
type Observer func(d *Decision, denial *AuthError, elapsed time.Duration)

// Authority evaluates every inbound request against the route table and the
// configured credential verifiers. Collaborators are optional: an Authority
// with no token verifier can still serve public routes, and a missing
// collaborator surfaces as a configuration error only when a request actually
// needs it.
type Authority struct {
	serviceName string
	routes      *RouteTable

	tokens   TokenVerifier
	service  ServiceVerifier
	keys     KeyAuthenticator
	roles    RoleChecker
	sessions SessionChecker

	mfa      MFAPolicy
	auditLog audit.Logger
	observer Observer
	clock    func() time.Time

	cookieName    string
	tenantHeader  string
	serviceHeader string
}

// Option configures an Authority.
type Option func(*Authority)

// WithTokenVerifier wires the verifier used for bearer tokens on user routes.
func WithTokenVerifier(v TokenVerifier) Option {
	return func(a *Authority) { a.tokens = v }
}

// WithServiceVerifier wires the verifier used for internal-tier routes.
func WithServiceVerifier(v ServiceVerifier) Option {
	return func(a *Authority) { a.service = v }
}

// WithKeyAuthenticator wires the engine used for dm_-prefixed credentials.
func WithKeyAuthenticator(k KeyAuthenticator) Option {
	return func(a *Authority) { a.keys = k }
}

// WithRoleChecker wires the engine consulted for rules that carry a
// required permission.
func WithRoleChecker(rc RoleChecker) Option {
	return func(a *Authority) { a.roles = rc }
}

// WithSessionChecker enables session liveness checks for tokens that carry a
// session binding. Without it, a token remains valid until it expires even if
// its session was invalidated.
func WithSessionChecker(s SessionChecker) Option {
	return func(a *Authority) { a.sessions = s }
}

// WithMFAPolicy sets the policy deciding which tiers demand a fresh MFA
// assertion. The default policy never does.
func WithMFAPolicy(p MFAPolicy) Option {
	return func(a *Authority) {
		if p != nil {
			a.mfa = p
		}
	}
}

// WithAuditLogger records denial events. The default logger discards them.
func WithAuditLogger(l audit.Logger) Option {
	return func(a *Authority) {
		if l != nil {
			a.auditLog = l
		}
	}
}

// WithObserver registers a decision observer.
func WithObserver(fn Observer) Option {
	return func(a *Authority) { a.observer = fn }
}

// WithClock overrides the time source used for MFA freshness.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.clock = now
		}
	}
}

// WithCookieName overrides the session cookie consulted for credentials.
func WithCookieName(name string) Option {
	return func(a *Authority) {
		if name != "" {
			a.cookieName = name
		}
	}
}

// WithTenantHeader overrides the header consulted for the request tenant.
func WithTenantHeader(name string) Option {
	return func(a *Authority) {
		if name != "" {
			a.tenantHeader = name
		}
	}
}

// NewAuthority builds an Authority for the named service. The service name is
// the audience expected on inbound service tokens. A nil route table treats
// every route as requiring authentication.
func NewAuthority(serviceName string, routes *RouteTable, opts ...Option) *Authority {
	if routes == nil {
		routes = MustNewRouteTable(TierAuthenticated)
	}
	a := &Authority{
		serviceName:   serviceName,
		routes:        routes,
		mfa:           NoMFA{},
		auditLog:      audit.NewNoOpLogger(),
		clock:         time.Now,
		cookieName:    DefaultCookieName,
		tenantHeader:  DefaultTenantHeader,
		serviceHeader: HeaderServiceToken,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize evaluates the request and either returns an allowed Decision or a
// *AuthError describing the denial. The decision's Context carries the
// established identity and should be attached to the request context by the
// caller; Middleware does this automatically.
func (a *Authority) Authorize(ctx context.Context, r *http.Request) (*Decision, error) {
	if a.observer == nil {
		return a.authorize(ctx, r)
	}
	start := time.Now()
	d, err := a.authorize(ctx, r)
	var denial *AuthError
	if err != nil {
		denial, _ = err.(*AuthError)
	}
	a.observer(d, denial, time.Since(start))
	return d, err
}

func (a *Authority) authorize(ctx context.Context, r *http.Request) (*Decision, error) {
	rc := RequestContext{RequestID: r.Header.Get(HeaderRequestID)}
	if rc.RequestID == "" {
		rc.RequestID = uuid.NewString()
	}

	rule := a.routes.Match(r.Method, r.URL.Path)
	if rule.Tier == TierPublic {
		return &Decision{Allowed: true, Tier: rule.Tier, Rule: rule, Context: rc}, nil
	}
	if rule.Tier == TierInternal {
		return a.authorizeService(ctx, r, rule, rc)
	}
	return a.authorizeUser(ctx, r, rule, rc)
}

func (a *Authority) authorizeService(ctx context.Context, r *http.Request, rule Rule, rc RequestContext) (*Decision, error) {
	raw := r.Header.Get(a.serviceHeader)
	if raw == "" {
		e := notAuthenticated("service token required")
		a.auditDenied(ctx, r, rc, e)
		return deny(rule, rc, e)
	}
	if a.service == nil {
		return deny(rule, rc, configurationError("service verifier not configured"))
	}
	claims, err := a.service.VerifyServiceToken(ctx, raw, a.serviceName, rule.RequiredOperations)
	if err != nil {
		e := classify(err)
		a.auditDenied(ctx, r, rc, e)
		return deny(rule, rc, e)
	}
	rc.IsService = true
	rc.ServiceName = claims.UserID()
	rc.TenantID = claims.TenantID
	rc.Scopes = claims.AllowedOperations
	return &Decision{Allowed: true, Tier: rule.Tier, Rule: rule, Context: rc}, nil
}

func (a *Authority) authorizeUser(ctx context.Context, r *http.Request, rule Rule, rc RequestContext) (*Decision, error) {
	cred, cerr := a.extractCredential(r)
	if cerr != nil {
		a.auditDenied(ctx, r, rc, cerr)
		return deny(rule, rc, cerr)
	}

	// claims stays nil on the API-key path; key-based callers can never
	// satisfy an MFA requirement.
	var claims *token.Claims

	if strings.HasPrefix(cred, apikey.Prefix) {
		if a.keys == nil {
			return deny(rule, rc, configurationError("api key authenticator not configured"))
		}
		key, err := a.keys.Authenticate(ctx, cred, apikey.ClientInfo{
			IPAddress: clientIP(r),
			Secure:    requestSecure(r),
		})
		if err != nil {
			e := classify(err)
			a.auditDenied(ctx, r, rc, e)
			return deny(rule, rc, e)
		}
		rc.UserID = key.UserID
		rc.TenantID = key.TenantID
		rc.Scopes = key.Scopes
		rc.KeyID = key.KeyID
	} else {
		if a.tokens == nil {
			return deny(rule, rc, configurationError("token verifier not configured"))
		}
		c, err := a.tokens.Verify(ctx, cred)
		if err != nil {
			e := classify(err)
			a.auditDenied(ctx, r, rc, e)
			return deny(rule, rc, e)
		}
		if c.TokenType != token.TypeAccess {
			e := notAuthenticated("invalid credential")
			a.auditDenied(ctx, r, rc, e)
			return deny(rule, rc, e)
		}
		claims = c
		rc.UserID = c.UserID()
		rc.TenantID = c.TenantID
		rc.SessionID = c.SessionID
		rc.Roles = c.Roles
		rc.Scopes = c.Scopes
		rc.MFAVerified = c.Verified

		if a.sessions != nil && rc.SessionID != "" {
			if _, err := a.sessions.Get(ctx, rc.SessionID); err != nil {
				e := classify(err)
				if e.Code != CodeBackendUnavailable {
					a.auditDenied(ctx, r, rc, e)
				}
				return deny(rule, rc, e)
			}
		}
	}

	if reqTenant := a.requestTenant(r); reqTenant != "" && rc.TenantID != "" && !strings.EqualFold(reqTenant, rc.TenantID) {
		e := forbidden(CodeTenantMismatch)
		a.auditDenied(ctx, r, rc, e)
		return deny(rule, rc, e)
	}

	if e := a.checkRequirements(rule, rc); e != nil {
		a.auditDenied(ctx, r, rc, e)
		return deny(rule, rc, e)
	}

	if maxAge, ok := a.mfa.FreshnessFor(rule.Tier); ok {
		if !token.IsMFAValidAt(claims, maxAge, a.clock()) {
			e := forbidden(CodeMFARequired)
			a.auditDenied(ctx, r, rc, e)
			return deny(rule, rc, e)
		}
	}

	return &Decision{Allowed: true, Tier: rule.Tier, Rule: rule, Context: rc}, nil
}

// checkRequirements enforces the rule's scope, role and permission demands
// against the established identity.
func (a *Authority) checkRequirements(rule Rule, rc RequestContext) *AuthError {
	for _, s := range rule.RequiredScopes {
		if !rc.HasScope(s) {
			return forbidden(CodeInsufficientScope)
		}
	}
	if len(rule.RequiredRoles) > 0 {
		granted := false
		for _, role := range rule.RequiredRoles {
			if rc.HasRole(role) {
				granted = true
				break
			}
		}
		if !granted {
			return forbidden(CodeInsufficientRole)
		}
	}
	if rule.RequiredPermission != "" {
		if a.roles == nil {
			return configurationError("role checker not configured")
		}
		action, resource, _ := strings.Cut(rule.RequiredPermission, ":")
		if !a.roles.CheckRolePermission(rc.Roles, action, resource) {
			return forbidden(CodeInsufficientRole)
		}
	}
	return nil
}

// extractCredential pulls the user credential from the request, trying the
// Authorization header, the session cookie and the X-Auth-Token header in
// that order. A malformed Authorization header is rejected outright rather
// than falling through to the other carriers.
func (a *Authority) extractCredential(r *http.Request) (string, *AuthError) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, rest, found := strings.Cut(h, " ")
		rest = strings.TrimSpace(rest)
		if !found || !strings.EqualFold(scheme, "Bearer") || rest == "" {
			return "", notAuthenticated("invalid authorization header")
		}
		return rest, nil
	}
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if v := r.Header.Get(HeaderAuthToken); v != "" {
		return v, nil
	}
	return "", notAuthenticated("")
}

func (a *Authority) requestTenant(r *http.Request) string {
	if t := r.Header.Get(a.tenantHeader); t != "" {
		return t
	}
	return mux.Vars(r)[tenantRouteVar]
}

// deny pairs the failed decision with its cause so callers still see the
// matched rule and whatever identity was established.
func deny(rule Rule, rc RequestContext, e *AuthError) (*Decision, error) {
	return &Decision{Allowed: false, Tier: rule.Tier, Rule: rule, Context: rc}, e
}

func (a *Authority) auditDenied(ctx context.Context, r *http.Request, rc RequestContext, e *AuthError) {
	eventType := audit.EventTypeAuthzAccessDenied
	if e.Code == CodeRateLimitExceeded {
		eventType = audit.EventTypeRateLimitExceeded
	}
	_ = a.auditLog.LogAuthorization(ctx, eventType, rc.UserID, audit.ResourceTypeRoute,
		r.Method+" "+r.URL.Path, audit.EventStatusDenied, string(e.Code))
}

// clientIP extracts the caller address, preferring proxy-set headers over the
// socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestSecure reports whether the request arrived over TLS, either directly
// or as attested by a terminating proxy.
func requestSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
