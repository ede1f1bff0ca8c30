package apikey

import (
	"errors"
	"fmt"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
)

var (
	// ErrKeyNotFound is returned when no stored key matches the credential.
	ErrKeyNotFound = errors.New("apikey: key not found")

	// ErrKeyRevoked is returned for keys in the Revoked state.
	ErrKeyRevoked = errors.New("apikey: key revoked")

	// ErrKeySuspended is returned for keys in the Suspended state.
	ErrKeySuspended = errors.New("apikey: key suspended")

	// ErrKeyExpired is returned for keys past their expiry, including keys
	// whose Expired transition happens lazily during authentication.
	ErrKeyExpired = errors.New("apikey: key expired")

	// ErrKeyNotActive is returned when a lifecycle operation needs an
	// Active key and finds something else.
	ErrKeyNotActive = errors.New("apikey: key not active")

	// ErrIPNotAllowed is returned when the client address is outside the
	// key's allow-list.
	ErrIPNotAllowed = errors.New("apikey: ip not allowed")

	// ErrHTTPSRequired is returned when a key demands TLS and the request
	// arrived without it.
	ErrHTTPSRequired = errors.New("apikey: https required")

	// ErrRateLimited is returned when the key's window budget is spent.
	// The concrete error is a *RateLimitError carrying the window detail.
	ErrRateLimited = errors.New("apikey: rate limit exceeded")

	// ErrScopeNotAllowed is returned when a requested scope exceeds the
	// issuing user's own permissions.
	ErrScopeNotAllowed = errors.New("apikey: scope not allowed")

	// ErrInvalidScope is returned for scope strings that do not parse.
	ErrInvalidScope = errors.New("apikey: invalid scope")

	// ErrTooManyKeys is returned when a user is at their key cap.
	ErrTooManyKeys = errors.New("apikey: too many keys")

	// ErrBackendUnavailable wraps store and counter failures so callers can
	// branch on the retryable kind.
	ErrBackendUnavailable = errors.New("apikey: backend unavailable")
)

// RateLimitError carries enough detail for a denied caller to back off
// correctly. It never includes other callers' usage.
type RateLimitError struct {
	Limit   int
	Window  quota.Window
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("apikey: rate limit exceeded: %d per %s", e.Limit, e.Window)
}

// Unwrap lets errors.Is(err, ErrRateLimited) hold for *RateLimitError.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
