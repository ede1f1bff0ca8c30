package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/secrets"
)

// Defaults applied when no option overrides them.
const (
	DefaultIssuer             = "dotmac-auth"
	DefaultAudience           = "dotmac-platform"
	DefaultKeyApp             = "auth"
	DefaultAccessTTL          = 15 * time.Minute
	DefaultRefreshTTL         = 7 * 24 * time.Hour
	DefaultServiceTokenTTL    = 5 * time.Minute
	DefaultRevocationCapacity = 100000
)

// Service issues and verifies signed claim sets for users and services.
// Signing keys come from a secrets.KeyProvider; each token records the key
// id it was signed with so verification keeps working through a rotation
// overlap.
type Service struct {
	keys     secrets.KeyProvider
	app      string
	issuer   string
	audience string

	accessTTL   time.Duration
	refreshTTL  time.Duration
	serviceTTL  time.Duration
	revokedSize int

	clock   func() time.Time
	audit   audit.Logger
	revoked *revocationList

	mu       sync.RWMutex
	services map[string]*ServiceIdentity
}

// Option configures a Service at construction.
type Option func(*Service)

// WithIssuer sets the iss claim on issued tokens and the expected issuer on
// verification.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// WithAudience sets the aud claim on issued tokens and the expected audience
// on verification.
func WithAudience(audience string) Option {
	return func(s *Service) { s.audience = audience }
}

// WithKeyApp names the application whose key ring signs tokens.
func WithKeyApp(app string) Option {
	return func(s *Service) { s.app = app }
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) { s.accessTTL = ttl }
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) { s.refreshTTL = ttl }
}

// WithServiceTokenTTL sets the service token lifetime.
func WithServiceTokenTTL(ttl time.Duration) Option {
	return func(s *Service) { s.serviceTTL = ttl }
}

// WithClock replaces the time source, letting tests pin issuance and expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAuditLogger wires an audit sink for issuance, refresh, revocation and
// verification failures.
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.audit = l
		}
	}
}

// WithRevocationCapacity bounds the revocation list.
func WithRevocationCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.revokedSize = n
		}
	}
}

// NewService creates a token service signing with keys from the provider.
func NewService(keys secrets.KeyProvider, opts ...Option) *Service {
	if keys == nil {
		panic("token: key provider is required")
	}
	s := &Service{
		keys:        keys,
		app:         DefaultKeyApp,
		issuer:      DefaultIssuer,
		audience:    DefaultAudience,
		accessTTL:   DefaultAccessTTL,
		refreshTTL:  DefaultRefreshTTL,
		serviceTTL:  DefaultServiceTokenTTL,
		revokedSize: DefaultRevocationCapacity,
		clock:       time.Now,
		audit:       audit.NewNoOpLogger(),
		services:    make(map[string]*ServiceIdentity),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Revocations never need to outlive the longest-lived token.
	s.revoked = newRevocationList(s.revokedSize, s.refreshTTL, s.clock)
	return s
}

// TokenPair is the result of user token issuance.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`

	// Claims of the access token, for callers that issue and immediately
	// act on the identity without re-parsing.
	Claims *Claims `json:"-"`
}

type issueOptions struct {
	mfa        *MFAClaims
	sessionID  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// IssueOption adjusts a single issuance.
type IssueOption func(*issueOptions)

// WithMFA embeds a verified multi-factor assertion into both tokens of the
// pair.
func WithMFA(mfa MFAClaims) IssueOption {
	return func(o *issueOptions) { o.mfa = &mfa }
}

// WithSessionID binds both tokens of the pair to a server-side session via
// the "sid" claim, so the edge can refuse tokens whose session was
// invalidated.
func WithSessionID(id string) IssueOption {
	return func(o *issueOptions) { o.sessionID = id }
}

// WithPairTTL overrides the access and refresh lifetimes for one issuance.
// Zero keeps the service default for that token.
func WithPairTTL(access, refresh time.Duration) IssueOption {
	return func(o *issueOptions) {
		o.accessTTL = access
		o.refreshTTL = refresh
	}
}

// IssuePair issues an access and refresh token for a user. The refresh token
// carries the same identity with a longer lifetime and a distinct type, so
// it can mint new pairs but never pass an access check.
func (s *Service) IssuePair(ctx context.Context, userID, tenantID string, scopes, roles []string, opts ...IssueOption) (*TokenPair, error) {
	pair, err := s.issuePair(ctx, userID, tenantID, scopes, roles, opts...)
	if err != nil {
		return nil, err
	}
	s.audit.LogAuthentication(ctx, audit.EventTypeTokenIssued, userID, audit.EventStatusSuccess, "token pair issued")
	return pair, nil
}

func (s *Service) issuePair(ctx context.Context, userID, tenantID string, scopes, roles []string, opts ...IssueOption) (*TokenPair, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrTokenMalformed)
	}
	var o issueOptions
	for _, opt := range opts {
		opt(&o)
	}
	accessTTL := s.accessTTL
	if o.accessTTL > 0 {
		accessTTL = o.accessTTL
	}
	refreshTTL := s.refreshTTL
	if o.refreshTTL > 0 {
		refreshTTL = o.refreshTTL
	}

	access := s.newClaims(TypeAccess, userID, tenantID, accessTTL)
	access.Scopes = append([]string(nil), scopes...)
	access.Roles = append([]string(nil), roles...)
	refresh := s.newClaims(TypeRefresh, userID, tenantID, refreshTTL)
	refresh.Scopes = append([]string(nil), scopes...)
	refresh.Roles = append([]string(nil), roles...)
	if o.mfa != nil {
		access.MFAClaims = *o.mfa
		refresh.MFAClaims = *o.mfa
	}
	if o.sessionID != "" {
		access.SessionID = o.sessionID
		refresh.SessionID = o.sessionID
	}

	accessToken, err := s.sign(ctx, access)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.sign(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		ExpiresAt:        access.ExpiresAt.Time,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
		Claims:           access,
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair. The consumed
// refresh token is revoked, so each one mints at most one pair. MFA claims
// carry over with their original timestamp; the age check keeps working
// across refreshes.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.verify(ctx, refreshToken)
	if err != nil {
		s.audit.LogAuthentication(ctx, audit.EventTypeTokenVerifyFailed, "", audit.EventStatusFailure, err.Error())
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		s.audit.LogAuthentication(ctx, audit.EventTypeTokenVerifyFailed, claims.Subject, audit.EventStatusDenied, "non-refresh token presented for refresh")
		return nil, fmt.Errorf("%w: %q presented for refresh", ErrWrongTokenType, claims.TokenType)
	}

	var opts []IssueOption
	if claims.Verified {
		opts = append(opts, WithMFA(claims.MFAClaims))
	}
	if claims.SessionID != "" {
		opts = append(opts, WithSessionID(claims.SessionID))
	}
	pair, err := s.issuePair(ctx, claims.Subject, claims.TenantID, claims.Scopes, claims.Roles, opts...)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt != nil {
		s.revoked.add(claims.ID, claims.ExpiresAt.Time)
	}
	s.audit.LogAuthentication(ctx, audit.EventTypeTokenRefreshed, claims.Subject, audit.EventStatusSuccess, "token pair refreshed")
	return pair, nil
}

// Verify parses and validates a token, returning its claims. Failures map to
// the package sentinels; a revoked token fails with ErrTokenRevoked even
// while otherwise valid.
func (s *Service) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.verify(ctx, tokenString)
	if err != nil {
		s.audit.LogAuthentication(ctx, audit.EventTypeTokenVerifyFailed, "", audit.EventStatusFailure, err.Error())
		return nil, err
	}
	return claims, nil
}

func (s *Service) verify(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if s.revoked.contains(claims.ID) {
		return nil, fmt.Errorf("%w: id %s", ErrTokenRevoked, claims.ID)
	}
	return claims, nil
}

// Revoke invalidates a live token before its natural expiry. Revoking an
// already expired or already revoked token succeeds without effect.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	claims, err := s.verify(ctx, tokenString)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenRevoked) {
			return nil
		}
		return err
	}
	until := s.clock().Add(s.refreshTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	s.revoked.add(claims.ID, until)
	s.audit.LogAuthentication(ctx, audit.EventTypeTokenRevoked, claims.Subject, audit.EventStatusSuccess, "token revoked")
	return nil
}

// RevokeTokenID revokes by token id for callers that no longer hold the
// token itself, for ttl from now.
func (s *Service) RevokeTokenID(ctx context.Context, jti string, ttl time.Duration) {
	if jti == "" {
		return
	}
	s.revoked.add(jti, s.clock().Add(ttl))
	s.audit.LogAuthentication(ctx, audit.EventTypeTokenRevoked, "", audit.EventStatusSuccess, "token id revoked")
}

// RevokedCount reports how many revocations are currently tracked.
func (s *Service) RevokedCount() int {
	return s.revoked.len()
}

func (s *Service) newClaims(tokenType, subject, tenantID string, ttl time.Duration) *Claims {
	now := s.clock()
	return &Claims{
		TokenType: tokenType,
		TenantID:  tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
}

func (s *Service) sign(ctx context.Context, claims *Claims) (string, error) {
	key, err := s.keys.CurrentKey(ctx, s.app)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSigningKey, err)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if key.ID != "" {
		tok.Header["kid"] = key.ID
	}
	signed, err := tok.SignedString(key.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// keyFunc resolves the verification key: by the token's kid header when
// present, falling back to the current key.
func (s *Service) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		if kid, ok := t.Header["kid"].(string); ok && kid != "" {
			key, err := s.keys.KeyByID(ctx, s.app, kid)
			if err != nil {
				return nil, err
			}
			return key.Secret, nil
		}
		key, err := s.keys.CurrentKey(ctx, s.app)
		if err != nil {
			return nil, err
		}
		return key.Secret, nil
	}
}

// mapJWTError folds golang-jwt's sentinel chain into this package's error
// kinds. Key lookup failures surface before the generic buckets: an unknown
// key id is indistinguishable from a forged signature, while an empty key
// ring is a configuration problem.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, secrets.ErrKeyNotFound):
		return fmt.Errorf("%w: unknown signing key id", ErrInvalidSignature)
	case errors.Is(err, secrets.ErrNoKeys):
		return fmt.Errorf("%w: %v", ErrNoSigningKey, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrInvalidAudience, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrInvalidIssuer, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
