package quota

import (
	"context"
	"sync"
	"time"
)

// pruneInterval bounds how often the memory counter scans for dead buckets.
const pruneInterval = time.Minute

// MemoryCounter is a process-local Counter. Buckets for past windows are
// pruned lazily on write.
type MemoryCounter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	count   int64
	resetAt time.Time
}

// NewMemoryCounter creates an empty in-memory counter. Prune timing follows
// the caller-supplied clock, so tests can drive it with fixed times.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{buckets: make(map[string]*bucket)}
}

// Allow implements Counter. The check and the increment happen under one
// lock hold, so a denied call never consumes quota and the stored count
// never exceeds the limit.
func (c *MemoryCounter) Allow(ctx context.Context, key string, limit int, window Window, now time.Time) (Decision, error) {
	if !window.Valid() {
		return Decision{}, ErrUnknownWindow
	}
	start := window.Truncate(now)
	resetAt := start.Add(window.Duration())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)

	b := c.bucketLocked(key, window, start, resetAt)
	d := Decision{Limit: limit, Window: window, ResetAt: resetAt}
	if b.count >= int64(limit) {
		return d, nil
	}
	b.count++
	d.Allowed = true
	d.Remaining = limit - int(b.count)
	return d, nil
}

// IncrBy implements Counter.
func (c *MemoryCounter) IncrBy(ctx context.Context, key string, n int64, window Window, now time.Time) (int64, error) {
	if !window.Valid() {
		return 0, ErrUnknownWindow
	}
	start := window.Truncate(now)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)

	b := c.bucketLocked(key, window, start, start.Add(window.Duration()))
	b.count += n
	return b.count, nil
}

// Count implements Counter.
func (c *MemoryCounter) Count(ctx context.Context, key string, window Window, now time.Time) (int64, error) {
	if !window.Valid() {
		return 0, ErrUnknownWindow
	}
	start := window.Truncate(now)

	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[bucketKey(key, window, start)]
	if !ok {
		return 0, nil
	}
	return b.count, nil
}

// Reset implements Counter.
func (c *MemoryCounter) Reset(ctx context.Context, key string, window Window, now time.Time) error {
	if !window.Valid() {
		return ErrUnknownWindow
	}
	start := window.Truncate(now)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buckets, bucketKey(key, window, start))
	return nil
}

func (c *MemoryCounter) bucketLocked(key string, window Window, start, resetAt time.Time) *bucket {
	bk := bucketKey(key, window, start)
	b, ok := c.buckets[bk]
	if !ok {
		b = &bucket{resetAt: resetAt}
		c.buckets[bk] = b
	}
	return b
}

func (c *MemoryCounter) pruneLocked(now time.Time) {
	if now.Sub(c.lastPrune) < pruneInterval {
		return
	}
	c.lastPrune = now
	for k, b := range c.buckets {
		if now.After(b.resetAt) {
			delete(c.buckets, k)
		}
	}
}
