package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/httputil"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/observability"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
)

// KeyFunc derives the throttling key for a request.
type KeyFunc func(*http.Request) string

// ClientRateLimiter throttles requests per client over a calendar-aligned
// window. It fronts endpoints where no credential exists yet to meter on,
// issuance and refresh above all; per-credential limits live in the API key
// engine. The counter decides whether buckets are process-local (memory)
// or shared across instances (redis).
type ClientRateLimiter struct {
	counter quota.Counter
	limit   int
	window  quota.Window
	prefix  string
	keyFn   KeyFunc
	clock   func() time.Time
}

// Option configures a ClientRateLimiter.
type Option func(*ClientRateLimiter)

// WithKeyFunc replaces the client IP key derivation. Returning "" from the
// function exempts the request.
func WithKeyFunc(fn KeyFunc) Option {
	return func(l *ClientRateLimiter) {
		if fn != nil {
			l.keyFn = fn
		}
	}
}

// WithPrefix namespaces the counter keys, for running several limiters
// against one backend.
func WithPrefix(prefix string) Option {
	return func(l *ClientRateLimiter) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithClock fixes the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *ClientRateLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewClientRateLimiter creates a limiter allowing limit requests per client
// per window.
func NewClientRateLimiter(counter quota.Counter, limit int, window quota.Window, opts ...Option) *ClientRateLimiter {
	l := &ClientRateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		prefix:  "ratelimit:ip:",
		keyFn:   ClientIP,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware enforces the limit. A counter outage fails open: an auth
// service that hard-fails on its throttle backend locks the whole platform
// out.
func (l *ClientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFn(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		decision, err := l.counter.Allow(r.Context(), l.prefix+key, l.limit, l.window, l.clock())
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("rate limit counter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(decision.ResetAt.Sub(l.clock()).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the originating client address, preferring proxy
// headers over the socket peer.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// The first entry is the original client; later hops append.
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
