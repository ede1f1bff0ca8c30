package token

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// revocationList remembers revoked token ids until the tokens themselves
// expire. Entries share one upper-bound TTL (the longest-lived token kind);
// each entry also records its own deadline so a short-lived revocation does
// not outlast the token it covers.
type revocationList struct {
	entries *lru.LRU[string, time.Time]
	clock   func() time.Time
}

func newRevocationList(capacity int, maxTTL time.Duration, clock func() time.Time) *revocationList {
	return &revocationList{
		entries: lru.NewLRU[string, time.Time](capacity, nil, maxTTL),
		clock:   clock,
	}
}

func (l *revocationList) add(jti string, until time.Time) {
	if jti == "" {
		return
	}
	l.entries.Add(jti, until)
}

func (l *revocationList) contains(jti string) bool {
	if jti == "" {
		return false
	}
	until, ok := l.entries.Get(jti)
	if !ok {
		return false
	}
	return l.clock().Before(until)
}

func (l *revocationList) len() int {
	return l.entries.Len()
}
