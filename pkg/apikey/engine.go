package apikey

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
)

const (
	// DefaultMaxKeysPerUser caps live keys per user unless overridden.
	DefaultMaxKeysPerUser = 10

	// DefaultRateLimit is the per-window request budget for keys created
	// without an explicit limit.
	DefaultRateLimit = 1000

	// DefaultRateWindow is the window for keys created without one.
	DefaultRateWindow = quota.WindowHour

	lockStripes = 64
)

// PermissionChecker reports whether a user holds an (action, resource)
// permission. rbac.Engine satisfies it; key issuance uses it to keep a key's
// scope grant within the issuing user's own permissions.
type PermissionChecker interface {
	CheckPermission(userID, action, resource string) bool
}

// PermitAll approves every scope grant. Wire it when issuance is already
// policed upstream.
type PermitAll struct{}

// CheckPermission implements PermissionChecker.
func (PermitAll) CheckPermission(string, string, string) bool { return true }

// Engine issues, authenticates and rotates scoped rate-limited API keys.
type Engine struct {
	store   Store
	checker PermissionChecker
	counter quota.Counter
	audit   audit.Logger
	clock   func() time.Time

	maxPerUser    int
	defaultLimit  int
	defaultWindow quota.Window

	locks [lockStripes]sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxKeysPerUser overrides the live-key cap.
func WithMaxKeysPerUser(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPerUser = n
		}
	}
}

// WithDefaultRateLimit overrides the budget applied to keys created without
// an explicit rate limit.
func WithDefaultRateLimit(limit int, window quota.Window) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.defaultLimit = limit
		}
		if window.Valid() {
			e.defaultWindow = window
		}
	}
}

// WithClock overrides time for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithAuditLogger sets the audit sink.
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.audit = l
		}
	}
}

// NewEngine creates an Engine. A nil store falls back to an in-process
// MemoryStore, a nil checker to PermitAll and a nil counter to a memory
// counter, so single-instance wiring needs nothing but NewEngine(nil, nil, nil).
func NewEngine(store Store, checker PermissionChecker, counter quota.Counter, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		checker:       checker,
		counter:       counter,
		audit:         audit.NewNoOpLogger(),
		clock:         time.Now,
		maxPerUser:    DefaultMaxKeysPerUser,
		defaultLimit:  DefaultRateLimit,
		defaultWindow: DefaultRateWindow,
	}
	if e.store == nil {
		e.store = NewMemoryStore()
	}
	if e.checker == nil {
		e.checker = PermitAll{}
	}
	if e.counter == nil {
		e.counter = quota.NewMemoryCounter()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateOptions carries the policy fields of a new key. Zero values take the
// engine defaults; a zero TTL means the key never expires.
type CreateOptions struct {
	Name              string
	TenantID          string
	RateLimitRequests int
	RateLimitWindow   quota.Window
	AllowedIPs        []string
	RequireHTTPS      bool
	TTL               time.Duration
}

// Create mints a key for userID. Every requested scope must be within the
// user's own permissions. The raw key is returned exactly once; only its
// hash is stored.
func (e *Engine) Create(ctx context.Context, userID string, scopes []string, opts CreateOptions) (*Key, string, error) {
	if userID == "" {
		return nil, "", fmt.Errorf("apikey: user id required")
	}
	for _, scope := range scopes {
		action, resource, err := parseScope(scope)
		if err != nil {
			return nil, "", err
		}
		if !e.checker.CheckPermission(userID, action, resource) {
			return nil, "", fmt.Errorf("%w: %q exceeds user permissions", ErrScopeNotAllowed, scope)
		}
	}
	for _, entry := range opts.AllowedIPs {
		if err := validateIPEntry(entry); err != nil {
			return nil, "", err
		}
	}
	if opts.RateLimitWindow != "" && !opts.RateLimitWindow.Valid() {
		return nil, "", fmt.Errorf("%w: %q", quota.ErrUnknownWindow, opts.RateLimitWindow)
	}

	now := e.clock()
	limit := opts.RateLimitRequests
	if limit <= 0 {
		limit = e.defaultLimit
	}
	window := opts.RateLimitWindow
	if window == "" {
		window = e.defaultWindow
	}

	lock := e.stripe(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	liveCount := 0
	for _, k := range existing {
		if k.live(now) {
			liveCount++
		}
	}
	if liveCount >= e.maxPerUser {
		return nil, "", fmt.Errorf("%w: limit %d", ErrTooManyKeys, e.maxPerUser)
	}

	raw, hash, prefix, err := generateKey()
	if err != nil {
		return nil, "", err
	}
	k := &Key{
		KeyID:             uuid.NewString(),
		KeyHash:           hash,
		KeyPrefix:         prefix,
		UserID:            userID,
		TenantID:          opts.TenantID,
		Name:              opts.Name,
		Scopes:            append([]string(nil), scopes...),
		Status:            StatusActive,
		RateLimitRequests: limit,
		RateLimitWindow:   window,
		AllowedIPs:        append([]string(nil), opts.AllowedIPs...),
		RequireHTTPS:      opts.RequireHTTPS,
		CreatedAt:         now,
	}
	if opts.TTL > 0 {
		exp := now.Add(opts.TTL)
		k.ExpiresAt = &exp
	}
	if err := e.store.Put(ctx, k); err != nil {
		return nil, "", err
	}

	_ = e.audit.LogCredential(ctx, audit.EventTypeAPIKeyCreated, userID,
		audit.ResourceTypeAPIKey, k.KeyPrefix, audit.EventStatusSuccess, "api key created")
	return k.Clone(), raw, nil
}

// Authenticate resolves a raw key and walks the policy pipeline: hash lookup,
// status, expiry, IP allow-list, HTTPS requirement, rate limit, usage
// accounting. Failures count against the key and are audited with the display
// prefix only.
func (e *Engine) Authenticate(ctx context.Context, rawKey string, client ClientInfo) (*Key, error) {
	now := e.clock()
	if !validFormat(rawKey) {
		e.auditFailure(ctx, "", PrefixOf(rawKey), "malformed key")
		return nil, ErrKeyNotFound
	}

	probe, err := e.store.GetByHash(ctx, HashKey(rawKey))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			e.auditFailure(ctx, "", PrefixOf(rawKey), "unknown key")
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	lock := e.stripe(probe.KeyID)
	lock.Lock()
	defer lock.Unlock()

	k, err := e.store.GetByID(ctx, probe.KeyID)
	if err != nil {
		return nil, err
	}

	failure := func(kind error, msg string) (*Key, error) {
		k.FailedRequests++
		_ = e.store.Put(ctx, k)
		e.auditFailure(ctx, k.UserID, k.KeyPrefix, msg)
		return nil, kind
	}

	switch k.Status {
	case StatusActive:
	case StatusSuspended:
		return failure(ErrKeySuspended, "key suspended")
	case StatusRevoked:
		return failure(ErrKeyRevoked, "key revoked")
	case StatusExpired:
		return failure(ErrKeyExpired, "key expired")
	default:
		return failure(ErrKeyNotActive, "key not active")
	}
	if k.expiredAt(now) {
		k.Status = StatusExpired
		return failure(ErrKeyExpired, "key expired")
	}
	if !ipAllowed(k.AllowedIPs, client.IPAddress) {
		return failure(ErrIPNotAllowed, "ip not in allow-list")
	}
	if k.RequireHTTPS && !client.Secure {
		return failure(ErrHTTPSRequired, "https required")
	}

	d, err := e.counter.Allow(ctx, "apikey:"+k.KeyID, k.RateLimitRequests, k.RateLimitWindow, now)
	if err != nil {
		return nil, fmt.Errorf("%w: rate limit check: %v", ErrBackendUnavailable, err)
	}
	if !d.Allowed {
		k.FailedRequests++
		_ = e.store.Put(ctx, k)
		_ = e.audit.LogCredential(ctx, audit.EventTypeRateLimitExceeded, k.UserID,
			audit.ResourceTypeAPIKey, k.KeyPrefix, audit.EventStatusDenied,
			fmt.Sprintf("rate limit exceeded: %d per %s", d.Limit, d.Window))
		return nil, &RateLimitError{Limit: d.Limit, Window: d.Window, ResetAt: d.ResetAt}
	}

	k.TotalRequests++
	used := now
	k.LastUsedAt = &used
	_ = e.store.Put(ctx, k)
	return k, nil
}

// Rotate replaces an active key with a fresh secret under identical policy
// fields and revokes the old one. The new raw key is returned exactly once.
func (e *Engine) Rotate(ctx context.Context, keyID string) (*Key, string, error) {
	now := e.clock()
	lock := e.stripe(keyID)
	lock.Lock()
	defer lock.Unlock()

	old, err := e.store.GetByID(ctx, keyID)
	if err != nil {
		return nil, "", err
	}
	if old.Status != StatusActive || old.expiredAt(now) {
		return nil, "", fmt.Errorf("%w: cannot rotate %s key", ErrKeyNotActive, old.Status)
	}

	raw, hash, prefix, err := generateKey()
	if err != nil {
		return nil, "", err
	}
	replacement := &Key{
		KeyID:             uuid.NewString(),
		KeyHash:           hash,
		KeyPrefix:         prefix,
		UserID:            old.UserID,
		TenantID:          old.TenantID,
		Name:              old.Name,
		Scopes:            append([]string(nil), old.Scopes...),
		Status:            StatusActive,
		RateLimitRequests: old.RateLimitRequests,
		RateLimitWindow:   old.RateLimitWindow,
		AllowedIPs:        append([]string(nil), old.AllowedIPs...),
		RequireHTTPS:      old.RequireHTTPS,
		CreatedAt:         now,
		RotatedFrom:       old.KeyID,
	}
	if old.ExpiresAt != nil {
		exp := *old.ExpiresAt
		replacement.ExpiresAt = &exp
	}

	if err := e.store.Put(ctx, replacement); err != nil {
		return nil, "", err
	}
	old.Status = StatusRevoked
	if err := e.store.Put(ctx, old); err != nil {
		return nil, "", err
	}

	_ = e.audit.LogCredential(ctx, audit.EventTypeAPIKeyRotated, old.UserID,
		audit.ResourceTypeAPIKey, replacement.KeyPrefix, audit.EventStatusSuccess,
		fmt.Sprintf("rotated from %s", old.KeyPrefix))
	return replacement.Clone(), raw, nil
}

// Revoke terminally disables a key. Revoking twice is a no-op.
func (e *Engine) Revoke(ctx context.Context, keyID string) error {
	lock := e.stripe(keyID)
	lock.Lock()
	defer lock.Unlock()

	k, err := e.store.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	if k.Status == StatusRevoked {
		return nil
	}
	k.Status = StatusRevoked
	if err := e.store.Put(ctx, k); err != nil {
		return err
	}
	_ = e.audit.LogCredential(ctx, audit.EventTypeAPIKeyRevoked, k.UserID,
		audit.ResourceTypeAPIKey, k.KeyPrefix, audit.EventStatusSuccess, "api key revoked")
	return nil
}

// Suspend pauses an active key. Suspending a suspended key is a no-op;
// revoked and expired keys cannot be suspended.
func (e *Engine) Suspend(ctx context.Context, keyID string) error {
	lock := e.stripe(keyID)
	lock.Lock()
	defer lock.Unlock()

	k, err := e.store.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	switch k.Status {
	case StatusSuspended:
		return nil
	case StatusActive:
	default:
		return fmt.Errorf("%w: cannot suspend %s key", ErrKeyNotActive, k.Status)
	}
	k.Status = StatusSuspended
	if err := e.store.Put(ctx, k); err != nil {
		return err
	}
	_ = e.audit.LogCredential(ctx, audit.EventTypeAPIKeySuspended, k.UserID,
		audit.ResourceTypeAPIKey, k.KeyPrefix, audit.EventStatusSuccess, "api key suspended")
	return nil
}

// Activate resumes a suspended key. Only Suspended moves back to Active;
// activating an active key is a no-op.
func (e *Engine) Activate(ctx context.Context, keyID string) error {
	now := e.clock()
	lock := e.stripe(keyID)
	lock.Lock()
	defer lock.Unlock()

	k, err := e.store.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	switch k.Status {
	case StatusActive:
		return nil
	case StatusSuspended:
	default:
		return fmt.Errorf("%w: cannot activate %s key", ErrKeyNotActive, k.Status)
	}
	if k.expiredAt(now) {
		k.Status = StatusExpired
		_ = e.store.Put(ctx, k)
		return fmt.Errorf("%w: expired while suspended", ErrKeyExpired)
	}
	k.Status = StatusActive
	if err := e.store.Put(ctx, k); err != nil {
		return err
	}
	_ = e.audit.LogCredential(ctx, audit.EventTypeAPIKeyActivated, k.UserID,
		audit.ResourceTypeAPIKey, k.KeyPrefix, audit.EventStatusSuccess, "api key activated")
	return nil
}

// KeysForUser lists every key record of a user, all statuses included,
// oldest first.
func (e *Engine) KeysForUser(ctx context.Context, userID string) ([]*Key, error) {
	return e.store.ListByUser(ctx, userID)
}

func (e *Engine) auditFailure(ctx context.Context, userID, prefix, msg string) {
	_ = e.audit.LogCredential(ctx, audit.EventTypeAPIKeyAuthFailed, userID,
		audit.ResourceTypeAPIKey, prefix, audit.EventStatusDenied, msg)
}

func (e *Engine) stripe(s string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(s))
	return &e.locks[h.Sum32()%lockStripes]
}

// parseScope splits "action:resource". The bare wildcard "*" reads as
// (*, *); anything else without both halves is rejected.
func parseScope(scope string) (action, resource string, err error) {
	s := strings.TrimSpace(scope)
	if s == "*" {
		return "*", "*", nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q must be action:resource", ErrInvalidScope, scope)
	}
	return parts[0], parts[1], nil
}

// validateIPEntry accepts a literal address or a CIDR block. Bad entries are
// rejected at creation so a typo cannot silently lock a key out.
func validateIPEntry(entry string) error {
	if strings.Contains(entry, "/") {
		if _, _, err := net.ParseCIDR(entry); err != nil {
			return fmt.Errorf("apikey: bad allow-list entry %q: %w", entry, err)
		}
		return nil
	}
	if net.ParseIP(entry) == nil {
		return fmt.Errorf("apikey: bad allow-list entry %q", entry)
	}
	return nil
}

// ipAllowed checks the client address against the allow-list. An empty list
// allows everything; an unparsable client address fails closed.
func ipAllowed(allowed []string, ip string) bool {
	if len(allowed) == 0 {
		return true
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	for _, entry := range allowed {
		if strings.Contains(entry, "/") {
			if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(addr) {
				return true
			}
			continue
		}
		if want := net.ParseIP(entry); want != nil && want.Equal(addr) {
			return true
		}
	}
	return false
}
