package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testSession(id, userID string, createdAt time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		Status:       StatusActive,
		CreatedAt:    createdAt,
		LastAccessed: createdAt,
		ExpiresAt:    createdAt.Add(ttl),
		Metadata:     map[string]string{"origin": "test"},
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	s := testSession("s1", "u1", now, time.Hour)
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.Metadata["origin"] != "test" {
		t.Errorf("Get() = %+v", got)
	}

	// The store must hold its own copy on both sides.
	got.Metadata["origin"] = "mutated"
	s.Metadata["origin"] = "mutated-source"
	again, _ := store.Get(ctx, "s1")
	if again.Metadata["origin"] != "test" {
		t.Error("store record aliased caller memory")
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStore_ListByUserOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.Put(ctx, testSession("s2", "u1", base.Add(2*time.Minute), time.Hour))
	store.Put(ctx, testSession("s1", "u1", base, time.Hour))
	store.Put(ctx, testSession("s3", "u1", base.Add(time.Minute), time.Hour))
	store.Put(ctx, testSession("other", "u2", base, time.Hour))

	sessions, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("ListByUser() count = %d, want 3", len(sessions))
	}
	for i, want := range []string{"s1", "s3", "s2"} {
		if sessions[i].ID != want {
			t.Errorf("sessions[%d] = %s, want %s (oldest first)", i, sessions[i].ID, want)
		}
	}

	if sessions, _ := store.ListByUser(ctx, "nobody"); sessions != nil {
		t.Errorf("ListByUser(nobody) = %v, want nil", sessions)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	store.Put(ctx, testSession("s1", "u1", now, time.Hour))
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("deleted session still resolvable")
	}
	if sessions, _ := store.ListByUser(ctx, "u1"); len(sessions) != 0 {
		t.Error("deleted session still in user index")
	}
	// Unknown ids delete cleanly.
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete(unknown) error = %v", err)
	}
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.Put(ctx, testSession("dead1", "u1", base, time.Minute))
	store.Put(ctx, testSession("dead2", "u2", base, 2*time.Minute))
	store.Put(ctx, testSession("live", "u1", base, time.Hour))

	removed, err := store.DeleteExpired(ctx, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteExpired() = %d, want 2", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if _, err := store.Get(ctx, "live"); err != nil {
		t.Errorf("unexpired session removed: %v", err)
	}
}
