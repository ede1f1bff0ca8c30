package quota

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCounter_AllowBoundary(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	now := time.Date(2025, 3, 14, 15, 9, 0, 0, time.UTC)

	// Exactly 3 requests pass inside the window.
	for i := 0; i < 3; i++ {
		d, err := c.Allow(ctx, "key1", 3, WindowMinute, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	// The 4th is denied and consumes nothing.
	d, err := c.Allow(ctx, "key1", 3, WindowMinute, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if d.Allowed {
		t.Error("4th request should be denied")
	}
	count, err := c.Count(ctx, "key1", WindowMinute, now)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3 (denied call must not increment)", count)
	}

	// The next window allows again.
	d, err = c.Allow(ctx, "key1", 3, WindowMinute, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !d.Allowed {
		t.Error("request in next window should be allowed")
	}
}

func TestMemoryCounter_DecisionFields(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	now := time.Date(2025, 3, 14, 15, 9, 30, 0, time.UTC)

	d, err := c.Allow(ctx, "key1", 5, WindowMinute, now)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if d.Limit != 5 {
		t.Errorf("Limit = %d, want 5", d.Limit)
	}
	if d.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", d.Remaining)
	}
	if d.Window != WindowMinute {
		t.Errorf("Window = %v, want minute", d.Window)
	}
	want := time.Date(2025, 3, 14, 15, 10, 0, 0, time.UTC)
	if !d.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, want)
	}
}

func TestMemoryCounter_KeysIsolated(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	now := time.Now()

	if _, err := c.Allow(ctx, "a", 1, WindowHour, now); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	d, err := c.Allow(ctx, "b", 1, WindowHour, now)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !d.Allowed {
		t.Error("keys should not share buckets")
	}
}

func TestMemoryCounter_IncrBy(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	now := time.Now()

	for i := int64(1); i <= 3; i++ {
		got, err := c.IncrBy(ctx, "sweep", 1, WindowDay, now)
		if err != nil {
			t.Fatalf("IncrBy() error = %v", err)
		}
		if got != i {
			t.Errorf("IncrBy() = %d, want %d", got, i)
		}
	}

	got, err := c.IncrBy(ctx, "sweep", 7, WindowDay, now)
	if err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}
	if got != 10 {
		t.Errorf("IncrBy() = %d, want 10", got)
	}
	count, err := c.Count(ctx, "sweep", WindowDay, now)
	if err != nil || count != 10 {
		t.Errorf("Count() = %d, %v, want 10", count, err)
	}
}

func TestMemoryCounter_Reset(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	now := time.Now()

	if _, err := c.IncrBy(ctx, "key1", 1, WindowHour, now); err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}
	if err := c.Reset(ctx, "key1", WindowHour, now); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	count, err := c.Count(ctx, "key1", WindowHour, now)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after reset = %d, want 0", count)
	}
}

func TestMemoryCounter_UnknownWindow(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()

	if _, err := c.Allow(ctx, "key1", 1, Window("fortnight"), time.Now()); err != ErrUnknownWindow {
		t.Errorf("Allow() error = %v, want ErrUnknownWindow", err)
	}
}

func TestMemoryCounter_ConcurrentAllow(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	now := time.Now()
	limit := 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.Allow(ctx, "shared", limit, WindowMinute, now)
			if err != nil {
				t.Errorf("Allow() error = %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("allowed = %d, want exactly %d under concurrency", allowed, limit)
	}
}

func TestMemoryCounter_PruneDropsOldBuckets(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	start := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

	if _, err := c.IncrBy(ctx, "old", 1, WindowMinute, start); err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}

	// Two minutes later the first bucket is past its reset and prunable.
	if _, err := c.IncrBy(ctx, "new", 1, WindowMinute, start.Add(2*time.Minute)); err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}

	c.mu.Lock()
	n := len(c.buckets)
	c.mu.Unlock()
	if n != 1 {
		t.Errorf("bucket count = %d, want 1 after prune", n)
	}
}
