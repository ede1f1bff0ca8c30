package secrets

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingProvider wraps a KeyProvider with a TTL-bounded cache so slow
// backends stay off the token hot path. Entries age out on their own, so a
// rotation becomes visible within one TTL without explicit invalidation.
type CachingProvider struct {
	backend KeyProvider
	current *lru.LRU[string, Key]
	byID    *lru.LRU[string, Key]
}

// NewCachingProvider caches up to maxEntries keys for ttl. A zero ttl
// disables expiry, which is only sensible for static backends.
func NewCachingProvider(backend KeyProvider, maxEntries int, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		backend: backend,
		current: lru.NewLRU[string, Key](maxEntries, nil, ttl),
		byID:    lru.NewLRU[string, Key](maxEntries, nil, ttl),
	}
}

// CurrentKey implements KeyProvider.
func (p *CachingProvider) CurrentKey(ctx context.Context, app string) (Key, error) {
	if k, ok := p.current.Get(app); ok {
		return k, nil
	}
	k, err := p.backend.CurrentKey(ctx, app)
	if err != nil {
		return Key{}, err
	}
	p.current.Add(app, k)
	p.byID.Add(app+"/"+k.ID, k)
	return k, nil
}

// KeyByID implements KeyProvider. Lookups by id cache independently of the
// current-key entry because overlap keys outlive their currency.
func (p *CachingProvider) KeyByID(ctx context.Context, app, keyID string) (Key, error) {
	cacheKey := app + "/" + keyID
	if k, ok := p.byID.Get(cacheKey); ok {
		return k, nil
	}
	k, err := p.backend.KeyByID(ctx, app, keyID)
	if err != nil {
		return Key{}, err
	}
	p.byID.Add(cacheKey, k)
	return k, nil
}

// Invalidate drops the cached current key for app, forcing the next read
// through to the backend.
func (p *CachingProvider) Invalidate(app string) {
	p.current.Remove(app)
}
