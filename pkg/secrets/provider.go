// Package secrets defines the signing-key capability consumed by the token
// service. The core only needs two operations from a secrets backend: the
// current key for an application, and a key by id so tokens signed before a
// rotation still verify during the overlap period.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoKeys is returned when an application has no signing keys at all.
	ErrNoKeys = errors.New("secrets: no signing keys for application")

	// ErrKeyNotFound is returned when a key id is unknown for the application.
	ErrKeyNotFound = errors.New("secrets: signing key not found")
)

// Key is a named signing secret.
type Key struct {
	ID     string `json:"id"`
	Secret []byte `json:"-"`
}

// KeyProvider supplies signing keys. Implementations must be safe for
// concurrent use.
type KeyProvider interface {
	// CurrentKey returns the key new tokens should be signed with.
	CurrentKey(ctx context.Context, app string) (Key, error)

	// KeyByID returns a specific key for verification during rotation
	// overlap.
	KeyByID(ctx context.Context, app, keyID string) (Key, error)
}

// StaticProvider holds keys in memory. Rotation appends a new current key
// while keeping prior keys resolvable by id.
type StaticProvider struct {
	mu   sync.RWMutex
	keys map[string][]Key
}

// NewStaticProvider creates an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{keys: make(map[string][]Key)}
}

// SetKey installs the initial (or replacement) key ring for an application.
func (p *StaticProvider) SetKey(app string, key Key) error {
	if len(key.Secret) == 0 {
		return fmt.Errorf("secrets: empty secret for app %q", app)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[app] = []Key{key}
	return nil
}

// Rotate makes key the new current key for app. Earlier keys stay available
// through KeyByID until pruned.
func (p *StaticProvider) Rotate(app string, key Key) error {
	if len(key.Secret) == 0 {
		return fmt.Errorf("secrets: empty secret for app %q", app)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[app] = append(p.keys[app], key)
	return nil
}

// Prune drops all but the current key for app, ending the rotation overlap.
func (p *StaticProvider) Prune(app string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ring := p.keys[app]
	if len(ring) > 1 {
		p.keys[app] = []Key{ring[len(ring)-1]}
	}
}

// CurrentKey implements KeyProvider.
func (p *StaticProvider) CurrentKey(ctx context.Context, app string) (Key, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ring := p.keys[app]
	if len(ring) == 0 {
		return Key{}, fmt.Errorf("%w: %q", ErrNoKeys, app)
	}
	return ring[len(ring)-1], nil
}

// KeyByID implements KeyProvider.
func (p *StaticProvider) KeyByID(ctx context.Context, app, keyID string) (Key, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, k := range p.keys[app] {
		if k.ID == keyID {
			return k, nil
		}
	}
	return Key{}, fmt.Errorf("%w: app %q key %q", ErrKeyNotFound, app, keyID)
}
