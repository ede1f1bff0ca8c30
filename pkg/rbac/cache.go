package rbac

import (
	"strings"
	"sync"
)

// DefaultCacheSize bounds the decision cache when no option overrides it.
const DefaultCacheSize = 10000

// decisionCache maps "user:action:resource" keys to check outcomes. Eviction
// is strictly FIFO by insertion order; updating an existing key does not
// refresh its position. Invalidation deletes entries lazily: the order queue
// keeps the dead key until it surfaces at the head.
type decisionCache struct {
	mu        sync.Mutex
	max       int
	entries   map[string]bool
	order     []string
	hits      int64
	misses    int64
	evictions int64
}

func newDecisionCache(max int) *decisionCache {
	return &decisionCache{
		max:     max,
		entries: make(map[string]bool),
	}
}

func (c *decisionCache) get(key string) (allowed, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	allowed, ok = c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return allowed, ok
}

func (c *decisionCache) put(key string, allowed bool) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = allowed
		return
	}
	for len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[key] = allowed
	c.order = append(c.order, key)

	// Invalidations leave dead keys in the queue; compact before it can
	// outgrow the live set by more than 2x.
	if len(c.order) > 2*c.max {
		c.compactLocked()
	}
}

// evictOldestLocked removes the oldest live entry, skipping keys already
// deleted by invalidation.
func (c *decisionCache) evictOldestLocked() {
	for len(c.order) > 0 {
		key := c.order[0]
		c.order = c.order[1:]
		if _, live := c.entries[key]; live {
			delete(c.entries, key)
			c.evictions++
			return
		}
	}
}

func (c *decisionCache) compactLocked() {
	live := c.order[:0]
	for _, key := range c.order {
		if _, ok := c.entries[key]; ok {
			live = append(live, key)
		}
	}
	c.order = live
}

// invalidateUser removes every cached decision for one user.
func (c *decisionCache) invalidateUser(userID string) {
	prefix := userID + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// clear removes everything.
func (c *decisionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]bool)
	c.order = nil
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *decisionCache) stats() (hits, misses, evictions int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}
