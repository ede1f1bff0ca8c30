package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/quota"
)

func TestManager_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(nil)

	s, err := mgr.Create(ctx, "user-42", "tenant-1", map[string]string{"ip": "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" || s.Status != StatusActive {
		t.Fatalf("created session = %+v", s)
	}
	if s.UserID != "user-42" || s.TenantID != "tenant-1" || s.Metadata["ip"] != "10.0.0.1" {
		t.Errorf("session fields = %+v", s)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		t.Error("expiry not after creation")
	}

	got, err := mgr.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != s.ID || got.Metadata["ip"] != "10.0.0.1" {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := mgr.Get(ctx, "no-such-session"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := mgr.Create(ctx, "", "", nil); err == nil {
		t.Error("Create() with empty user should fail")
	}
}

func TestManager_GetTouchesLastAccessed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewManager(nil, WithClock(func() time.Time { return now }))

	s, err := mgr.Create(ctx, "user-42", "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	fixedExpiry := s.ExpiresAt

	now = now.Add(10 * time.Minute)
	got, err := mgr.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.LastAccessed.Equal(now) {
		t.Errorf("LastAccessed = %v, want %v", got.LastAccessed, now)
	}
	// Fixed TTL: the expiry must not move on read.
	if !got.ExpiresAt.Equal(fixedExpiry) {
		t.Errorf("ExpiresAt moved to %v under fixed TTL", got.ExpiresAt)
	}
}

func TestManager_SlidingTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewManager(nil,
		WithClock(func() time.Time { return now }),
		WithTTL(time.Hour),
		WithSlidingTTL(true),
	)

	s, err := mgr.Create(ctx, "user-42", "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// 50 minutes in, a read slides the expiry to now+1h.
	now = now.Add(50 * time.Minute)
	got, err := mgr.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, now.Add(time.Hour))
	}

	// Another 50 minutes would have crossed the original expiry; the slide
	// keeps the session alive.
	now = now.Add(50 * time.Minute)
	if _, err := mgr.Get(ctx, s.ID); err != nil {
		t.Errorf("Get() after slide error = %v", err)
	}
}

func TestManager_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewManager(nil,
		WithClock(func() time.Time { return now }),
		WithTTL(time.Hour),
	)

	s, err := mgr.Create(ctx, "user-42", "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	now = now.Add(time.Hour + time.Second)
	if _, err := mgr.Get(ctx, s.ID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Get() past expiry error = %v, want ErrSessionExpired", err)
	}
	// Lazy detection destroyed the record.
	if _, err := mgr.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after lazy expiry error = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_CapEviction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	mgr := NewManager(store,
		WithClock(func() time.Time { return now }),
		WithMaxPerUser(2),
	)

	first, _ := mgr.Create(ctx, "user-42", "", nil)
	now = now.Add(time.Minute)
	second, _ := mgr.Create(ctx, "user-42", "", nil)
	now = now.Add(time.Minute)
	third, err := mgr.Create(ctx, "user-42", "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// The oldest by CreatedAt goes; exactly two remain.
	if _, err := mgr.Get(ctx, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("oldest session survived the cap, error = %v", err)
	}
	for _, id := range []string{second.ID, third.ID} {
		if _, err := mgr.Get(ctx, id); err != nil {
			t.Errorf("Get(%s) error = %v", id, err)
		}
	}
	sessions, _ := store.ListByUser(ctx, "user-42")
	if len(sessions) != 2 {
		t.Errorf("sessions after cap = %d, want 2", len(sessions))
	}

	// Another user is untouched by the cap accounting.
	if _, err := mgr.Create(ctx, "user-43", "", nil); err != nil {
		t.Errorf("Create() for other user error = %v", err)
	}
}

func TestManager_Invalidate(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(nil)

	s, _ := mgr.Create(ctx, "user-42", "", nil)
	if err := mgr.Invalidate(ctx, s.ID); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := mgr.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after invalidate error = %v, want ErrSessionNotFound", err)
	}
	if err := mgr.Invalidate(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Invalidate() repeat error = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_InvalidateUser(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(nil)

	var keep *Session
	for i := 0; i < 4; i++ {
		s, err := mgr.Create(ctx, "user-42", "", nil)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		keep = s
	}
	mgr.Create(ctx, "user-43", "", nil)

	removed, err := mgr.InvalidateUser(ctx, "user-42", keep.ID)
	if err != nil {
		t.Fatalf("InvalidateUser() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("InvalidateUser() removed = %d, want 3", removed)
	}
	if _, err := mgr.Get(ctx, keep.ID); err != nil {
		t.Errorf("excluded session was removed: %v", err)
	}

	// Logout-all without exclusion.
	removed, err = mgr.InvalidateUser(ctx, "user-42", "")
	if err != nil || removed != 1 {
		t.Errorf("InvalidateUser() = %d, %v, want 1, nil", removed, err)
	}
}

func TestManager_ListForUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewManager(nil,
		WithClock(func() time.Time { return now }),
		WithTTL(time.Hour),
	)

	first, err := mgr.Create(ctx, "user-42", "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	now = now.Add(time.Minute)
	second, err := mgr.Create(ctx, "user-42", "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mgr.Create(ctx, "user-43", "", nil)

	got, err := mgr.ListForUser(ctx, "user-42")
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("ListForUser() = %d sessions, want [first, second]", len(got))
	}

	// Suspicious sessions stay visible in the listing.
	if err := mgr.MarkSuspicious(ctx, second.ID); err != nil {
		t.Fatalf("MarkSuspicious() error = %v", err)
	}
	got, _ = mgr.ListForUser(ctx, "user-42")
	if len(got) != 2 {
		t.Errorf("ListForUser() after flag = %d sessions, want 2", len(got))
	}

	// The first session expires one hour after its creation; listing at
	// that point drops it while the minute-younger second survives.
	now = now.Add(59 * time.Minute)
	got, err = mgr.ListForUser(ctx, "user-42")
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != second.ID {
		t.Errorf("ListForUser() past expiry = %+v, want only the second session", got)
	}

	empty, err := mgr.ListForUser(ctx, "user-99")
	if err != nil || len(empty) != 0 {
		t.Errorf("ListForUser(unknown) = %v, %v, want empty", empty, err)
	}
}

func TestManager_Extend(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewManager(nil,
		WithClock(func() time.Time { return now }),
		WithTTL(time.Hour),
	)

	s, _ := mgr.Create(ctx, "user-42", "", nil)
	extended, err := mgr.Extend(ctx, s.ID, 30*time.Minute)
	if err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	if !extended.ExpiresAt.Equal(s.ExpiresAt.Add(30 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", extended.ExpiresAt, s.ExpiresAt.Add(30*time.Minute))
	}

	if _, err := mgr.Extend(ctx, s.ID, -time.Minute); err == nil {
		t.Error("Extend() with negative duration should fail")
	}

	now = now.Add(2 * time.Hour)
	if _, err := mgr.Extend(ctx, s.ID, time.Hour); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Extend() past expiry error = %v, want ErrSessionExpired", err)
	}
}

func TestManager_MarkSuspicious(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(nil)

	s, _ := mgr.Create(ctx, "user-42", "", nil)
	if err := mgr.MarkSuspicious(ctx, s.ID); err != nil {
		t.Fatalf("MarkSuspicious() error = %v", err)
	}
	if _, err := mgr.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("Get(suspicious) error = %v, want ErrSessionNotActive", err)
	}
	if err := mgr.MarkSuspicious(ctx, s.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("MarkSuspicious() repeat error = %v, want ErrSessionNotActive", err)
	}
}

func TestManager_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	counter := quota.NewMemoryCounter()
	store := NewMemoryStore()
	mgr := NewManager(store,
		WithClock(func() time.Time { return now }),
		WithTTL(time.Hour),
		WithSweepCounter(counter, quota.WindowHour),
	)

	for i := 0; i < 3; i++ {
		if _, err := mgr.Create(ctx, fmt.Sprintf("user-%d", i), "", nil); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	now = now.Add(30 * time.Minute)
	survivor, err := mgr.Create(ctx, "late-user", "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	now = now.Add(45 * time.Minute) // first three are past expiry, survivor is not
	removed, err := mgr.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("DeleteExpired() = %d, want 3", removed)
	}
	if _, err := mgr.Get(ctx, survivor.ID); err != nil {
		t.Errorf("survivor removed by sweep: %v", err)
	}

	swept, err := counter.Count(ctx, "session:swept", quota.WindowHour, now)
	if err != nil || swept != 3 {
		t.Errorf("sweep counter = %d, %v, want 3", swept, err)
	}
}

func TestManager_ConcurrentCreateRespectsCap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	mgr := NewManager(store, WithMaxPerUser(3))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Create(ctx, "user-42", "", nil); err != nil {
				t.Errorf("Create() error = %v", err)
			}
		}()
	}
	wg.Wait()

	sessions, err := store.ListByUser(ctx, "user-42")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(sessions) > 3 {
		t.Errorf("sessions after concurrent creates = %d, want <= 3", len(sessions))
	}
}
