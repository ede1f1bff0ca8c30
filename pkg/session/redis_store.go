package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// expiryGrace keeps records resolvable slightly past their ExpiresAt so the
// manager's lazy expiry detection usually fires before Redis reaps the key.
const expiryGrace = time.Minute

// indexSlack pads the user index TTL past the newest record's deadline so the
// index outlives sibling records written earlier with longer deadlines.
const indexSlack = 30 * 24 * time.Hour

// RedisStore is a Store shared across instances through Redis. Records carry
// native per-key TTLs, so DeleteExpired has nothing to sweep.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix defaults to
// "session".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: corrupt record: %v", ErrBackendUnavailable, err)
	}
	return &s, nil
}

// Put implements Store. The record and the user index both expire on their
// own; the index TTL restarts on every write.
func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	deadline := s.ExpiresAt.Add(expiryGrace)

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.key(s.ID), data, 0)
	pipe.ExpireAt(ctx, r.key(s.ID), deadline)
	pipe.SAdd(ctx, r.userKey(s.UserID), s.ID)
	pipe.Expire(ctx, r.userKey(s.UserID), deadline.Sub(s.LastAccessed)+indexSlack)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.key(id))
	pipe.SRem(ctx, r.userKey(s.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// ListByUser implements Store. Ids whose records were reaped by native
// expiry are pruned from the index on the way through.
func (r *RedisStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	out := make([]*Session, 0, len(ids))
	var dangling []interface{}
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				dangling = append(dangling, id)
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	if len(dangling) > 0 {
		r.client.SRem(ctx, r.userKey(userID), dangling...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteExpired implements Store. Redis reaps expired records natively, so
// there is never anything to remove here.
func (r *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Ping verifies backend connectivity for readiness checks.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + ":" + id
}

func (r *RedisStore) userKey(userID string) string {
	return r.prefix + ":user:" + userID
}
