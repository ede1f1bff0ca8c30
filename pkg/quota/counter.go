// Package quota provides calendar-aligned windowed request counting shared by
// the API key engine and background maintenance jobs.
//
// Windows are truncated to the minute, hour or day rather than sliding, so a
// caller can burst up to twice its limit across a window boundary. That is a
// known characteristic of the scheme, kept for predictable reset times.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownWindow is returned for a window outside minute/hour/day.
	ErrUnknownWindow = errors.New("quota: unknown window")

	// ErrBackendUnavailable wraps backend failures so callers can branch on
	// the retryable kind.
	ErrBackendUnavailable = errors.New("quota: backend unavailable")
)

// Decision is the outcome of an Allow call.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Window    Window    `json:"window"`
	ResetAt   time.Time `json:"reset_at"`
}

// Counter counts events per (key, window) bucket. Implementations must make
// Allow a single atomic check-and-increment so concurrent callers cannot
// exceed the limit through interleaving.
type Counter interface {
	// Allow records one request against the key's current window bucket if
	// the bucket is under limit, and reports the decision. A denied call
	// must not consume quota.
	Allow(ctx context.Context, key string, limit int, window Window, now time.Time) (Decision, error)

	// IncrBy adds n to the key's current window bucket without enforcing a
	// limit, for accounting such as cleanup sweeps.
	IncrBy(ctx context.Context, key string, n int64, window Window, now time.Time) (int64, error)

	// Count returns the key's current window bucket value.
	Count(ctx context.Context, key string, window Window, now time.Time) (int64, error)

	// Reset clears the key's current window bucket.
	Reset(ctx context.Context, key string, window Window, now time.Time) error
}

// bucketKey names the storage cell for a key's current window. Embedding the
// window start keeps old buckets from ever being reused.
func bucketKey(key string, window Window, start time.Time) string {
	return fmt.Sprintf("%s:%s:%d", key, window, start.Unix())
}
