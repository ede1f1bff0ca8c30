// Package session manages server-side login sessions over a pluggable
// store.
//
// # Overview
//
// A session is Active from creation until explicit invalidation, expiry or
// a suspicious flag; nothing ever returns to Active. Expiry is detected
// lazily on read and by a periodic sweep, so no per-session timer exists.
// Creation enforces a per-user cap by evicting the user's oldest sessions
// first.
//
//	mgr := session.NewManager(session.NewRedisStore(client, ""),
//		session.WithTTL(12*time.Hour),
//		session.WithMaxPerUser(5),
//		session.WithSlidingTTL(true),
//	)
//
//	s, err := mgr.Create(ctx, "user-42", "tenant-1", map[string]string{"ip": ip})
//	s, err = mgr.Get(ctx, s.ID)                  // bumps last_accessed
//	n, err := mgr.InvalidateUser(ctx, "user-42", s.ID) // logout everywhere else
//
// # Stores
//
// MemoryStore keeps sessions in process; RedisStore shares them across
// instances with native per-key TTLs standing in for the sweep. The manager
// cannot tell them apart: both order ListByUser oldest first and both
// surface outages as ErrBackendUnavailable.
//
// # Locking
//
// Reads re-persist the record (last_accessed, sliding expiry) and creation
// may evict; both serialize on a per-user striped lock so an eviction never
// races a read of the same user's sessions. The expiry sweep bypasses these
// locks entirely.
package session
