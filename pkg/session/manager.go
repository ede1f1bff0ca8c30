package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
)

// Defaults applied when no option overrides them.
const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxPerUser = 5

	lockStripes = 64
)

// Manager drives the session lifecycle over a pluggable Store. Reads and
// cap evictions for the same user serialize on a striped per-user lock, so
// a concurrent create can never evict a session out from under a read that
// is about to re-persist it.
type Manager struct {
	store      Store
	ttl        time.Duration
	maxPerUser int
	sliding    bool
	clock      func() time.Time
	audit      audit.Logger

	sweepCounter quota.Counter
	sweepWindow  quota.Window

	stripes [lockStripes]sync.Mutex
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMaxPerUser bounds concurrent sessions per user. Creating past the cap
// evicts the user's oldest sessions first.
func WithMaxPerUser(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxPerUser = n
		}
	}
}

// WithSlidingTTL makes every read push the expiry out to now+TTL. The
// default is a fixed lifetime from creation.
func WithSlidingTTL(sliding bool) Option {
	return func(m *Manager) { m.sliding = sliding }
}

// WithClock replaces the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithAuditLogger wires an audit sink for session lifecycle events.
func WithAuditLogger(l audit.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.audit = l
		}
	}
}

// WithSweepCounter records expired-session removals in a windowed counter,
// the same primitive the API key engine limits with.
func WithSweepCounter(c quota.Counter, window quota.Window) Option {
	return func(m *Manager) {
		m.sweepCounter = c
		m.sweepWindow = window
	}
}

// NewManager creates a session manager. A nil store gets an in-memory one.
func NewManager(store Store, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		store:      store,
		ttl:        DefaultTTL,
		maxPerUser: DefaultMaxPerUser,
		clock:      time.Now,
		audit:      audit.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session for the user. When the user is at the session
// cap, the oldest sessions by CreatedAt are evicted until the new one fits.
func (m *Manager) Create(ctx context.Context, userID, tenantID string, metadata map[string]string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("session: empty user id")
	}
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := m.clock()
	existing, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var live []*Session
	for _, s := range existing {
		// Records the sweep has not reached yet do not count toward the
		// cap; drop them on the way through.
		if s.expiredAt(now) {
			_ = m.store.Delete(ctx, s.ID)
			continue
		}
		live = append(live, s)
	}
	for len(live) >= m.maxPerUser {
		oldest := live[0]
		if err := m.store.Delete(ctx, oldest.ID); err != nil {
			return nil, err
		}
		live = live[1:]
		m.audit.LogCredential(ctx, audit.EventTypeSessionEvicted, userID, audit.ResourceTypeSession, oldest.ID, audit.EventStatusSuccess, "session cap eviction")
	}

	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		TenantID:     tenantID,
		Status:       StatusActive,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if len(metadata) > 0 {
		s.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			s.Metadata[k] = v
		}
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, err
	}
	m.audit.LogCredential(ctx, audit.EventTypeSessionCreated, userID, audit.ResourceTypeSession, s.ID, audit.EventStatusSuccess, "session created")
	return s, nil
}

// Get returns an active session, bumping LastAccessed and, under sliding
// TTL, the expiry. Expiry is detected lazily here: a session past its
// lifetime is destroyed and reported as expired, never returned.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lock := m.userLock(s.UserID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock; a concurrent cap eviction or logout-all may
	// have removed the session between the first load and here.
	s, err = m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	if s.Status != StatusActive {
		return nil, fmt.Errorf("%w: status %s", ErrSessionNotActive, s.Status)
	}
	if s.expiredAt(now) {
		_ = m.store.Delete(ctx, id)
		m.audit.LogCredential(ctx, audit.EventTypeSessionExpired, s.UserID, audit.ResourceTypeSession, id, audit.EventStatusSuccess, "session expired on read")
		return nil, fmt.Errorf("%w: %s", ErrSessionExpired, id)
	}

	s.LastAccessed = now
	if m.sliding {
		s.ExpiresAt = now.Add(m.ttl)
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Invalidate ends a session explicitly.
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	lock := m.userLock(s.UserID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.audit.LogCredential(ctx, audit.EventTypeSessionInvalidated, s.UserID, audit.ResourceTypeSession, id, audit.EventStatusSuccess, "session invalidated")
	return nil
}

// InvalidateUser ends every session of a user except excludeID, typically
// the caller's own session after a password change. It returns how many
// sessions were removed.
func (m *Manager) InvalidateUser(ctx context.Context, userID, excludeID string) (int, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range sessions {
		if s.ID == excludeID {
			continue
		}
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		m.audit.LogCredential(ctx, audit.EventTypeSessionInvalidated, userID, audit.ResourceTypeSession, "", audit.EventStatusSuccess, fmt.Sprintf("%d sessions invalidated", removed))
	}
	return removed, nil
}

// ListForUser returns the user's sessions ordered oldest first. Expired
// records found along the way are dropped, mirroring Get's lazy detection.
// Suspicious sessions are included so an account review can see them.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	live := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if s.expiredAt(now) {
			_ = m.store.Delete(ctx, s.ID)
			continue
		}
		live = append(live, s)
	}
	return live, nil
}

// Extend pushes a session's expiry out by additional. The session must
// still be active.
func (m *Manager) Extend(ctx context.Context, id string, additional time.Duration) (*Session, error) {
	if additional <= 0 {
		return nil, fmt.Errorf("session: non-positive extension")
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lock := m.userLock(s.UserID)
	lock.Lock()
	defer lock.Unlock()

	s, err = m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	if s.Status != StatusActive {
		return nil, fmt.Errorf("%w: status %s", ErrSessionNotActive, s.Status)
	}
	if s.expiredAt(now) {
		_ = m.store.Delete(ctx, id)
		return nil, fmt.Errorf("%w: %s", ErrSessionExpired, id)
	}
	s.ExpiresAt = s.ExpiresAt.Add(additional)
	if err := m.store.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// MarkSuspicious flags an active session. The record stays readable through
// the store for forensics but Get refuses it, and expiry still destroys it.
func (m *Manager) MarkSuspicious(ctx context.Context, id string) error {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	lock := m.userLock(s.UserID)
	lock.Lock()
	defer lock.Unlock()

	s, err = m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Status != StatusActive {
		return fmt.Errorf("%w: status %s", ErrSessionNotActive, s.Status)
	}
	s.Status = StatusSuspicious
	if err := m.store.Put(ctx, s); err != nil {
		return err
	}
	m.audit.LogCredential(ctx, audit.EventTypeSessionSuspicious, s.UserID, audit.ResourceTypeSession, id, audit.EventStatusDenied, "session flagged suspicious")
	return nil
}

// DeleteExpired sweeps expired sessions out of the store. Removals are
// recorded in the sweep counter when one is wired. The sweep takes no
// per-user locks; stores delete one record at a time.
func (m *Manager) DeleteExpired(ctx context.Context) (int, error) {
	now := m.clock()
	removed, err := m.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		if m.sweepCounter != nil {
			// Accounting only; a counter backend outage must not fail the
			// sweep.
			_, _ = m.sweepCounter.IncrBy(ctx, "session:swept", int64(removed), m.sweepWindow, now)
		}
		m.audit.LogCredential(ctx, audit.EventTypeSessionExpired, "", audit.ResourceTypeSession, "", audit.EventStatusSuccess, fmt.Sprintf("%d expired sessions swept", removed))
	}
	return removed, nil
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &m.stripes[h.Sum32()%lockStripes]
}
