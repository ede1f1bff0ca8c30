package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store persists sessions. The manager treats every implementation
// identically; a backend with native per-key expiry may make DeleteExpired a
// no-op.
type Store interface {
	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Put creates or replaces the session record.
	Put(ctx context.Context, s *Session) error

	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// ListByUser returns the user's sessions ordered oldest first by
	// CreatedAt.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// DeleteExpired removes sessions whose ExpiresAt has passed and reports
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is a process-local Store backed by a map with a per-user
// index.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	record := s.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[record.ID] = record
	set, ok := m.byUser[record.UserID]
	if !ok {
		set = make(map[string]struct{})
		m.byUser[record.UserID] = set
	}
	set[record.ID] = struct{}{}
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(id)
	return nil
}

func (m *MemoryStore) deleteLocked(id string) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	if set, ok := m.byUser[s.UserID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
}

// ListByUser implements Store.
func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.byUser[userID]
	if !ok {
		return nil, nil
	}
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if s, ok := m.sessions[id]; ok {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteExpired implements Store.
func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for id, s := range m.sessions {
		if s.expiredAt(now) {
			m.deleteLocked(id)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many sessions the store holds, for tests and metrics.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
