package apikey

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store is the persistence contract for key records. Implementations return
// ErrKeyNotFound for unknown ids/hashes and wrap infrastructure failures in
// ErrBackendUnavailable. Records crossing the boundary are owned by the
// caller; implementations must not retain or mutate them.
type Store interface {
	// GetByID loads one record by key id.
	GetByID(ctx context.Context, id string) (*Key, error)

	// GetByHash loads one record by its secret's hash. This is the
	// authentication lookup path.
	GetByHash(ctx context.Context, hash string) (*Key, error)

	// Put inserts or replaces a record.
	Put(ctx context.Context, k *Key) error

	// ListByUser returns all of a user's records, every status included,
	// ordered oldest first by CreatedAt with KeyID as tiebreak.
	ListByUser(ctx context.Context, userID string) ([]*Key, error)
}

// MemoryStore is an in-process Store for single-instance deployments and
// tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Key
	byHash map[string]string
	byUser map[string]map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Key),
		byHash: make(map[string]string),
		byUser: make(map[string]map[string]struct{}),
	}
}

// GetByID implements Store.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return k.Clone(), nil
}

// GetByHash implements Store.
func (m *MemoryStore) GetByHash(ctx context.Context, hash string) (*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	k, ok := m.byID[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k.Clone(), nil
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, k *Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byID[k.KeyID]; ok && prev.KeyHash != k.KeyHash {
		delete(m.byHash, prev.KeyHash)
	}
	stored := k.Clone()
	m.byID[k.KeyID] = stored
	m.byHash[k.KeyHash] = k.KeyID

	ids, ok := m.byUser[k.UserID]
	if !ok {
		ids = make(map[string]struct{})
		m.byUser[k.UserID] = ids
	}
	ids[k.KeyID] = struct{}{}
	return nil
}

// ListByUser implements Store.
func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.byUser[userID]
	if !ok {
		return nil, nil
	}
	out := make([]*Key, 0, len(ids))
	for id := range ids {
		if k, ok := m.byID[id]; ok {
			out = append(out, k.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].KeyID < out[j].KeyID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Len reports how many records the store holds.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
