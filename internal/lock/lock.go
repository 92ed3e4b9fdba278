// Package lock implements the admission lock of spec §4.8/§5: a
// per-(user,market) mutual exclusion with a short TTL that fails fast
// under contention instead of queueing, backed by Redis SET NX PX via
// github.com/redis/go-redis/v9. It is distinct from the matching lock,
// which is the per-book mutex in internal/book.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predictex/core/internal/domain"
)

// DefaultTTL matches spec §4.8's 5-second admission lock window
// (ADMISSION_LOCK_TTL_MS).
const DefaultTTL = 5 * time.Second

// Admission acquires and releases per-(user,market) admission locks.
type Admission struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Admission {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Admission{rdb: rdb, ttl: ttl}
}

func key(userAddress, marketID string) string {
	return fmt.Sprintf("lock:admission:%s:%s", marketID, userAddress)
}

// Releaser is an acquired lock of any implementation. Release must be
// called exactly once, including on every error path after Acquire
// succeeds (spec §4.8: "admission lock released even on error").
type Releaser interface {
	Release(ctx context.Context) error
}

// Held is the Redis-backed Releaser returned by Admission.Acquire.
type Held struct {
	a     *Admission
	token string
	key   string
}

// Acquire takes the admission lock for (userAddress, marketID). It does
// not block: if the lock is already held, it returns a RateLimited
// domain error immediately.
func (a *Admission) Acquire(ctx context.Context, userAddress, marketID string) (Releaser, error) {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	k := key(userAddress, marketID)

	ok, err := a.rdb.SetNX(ctx, k, token, a.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire: %w", err)
	}
	if !ok {
		return nil, domain.RateLimited("an order for this market is already being processed")
	}
	return &Held{a: a, token: token, key: k}, nil
}

// releaseScript deletes the lock only if it still holds our token, so a
// lock that expired and was re-acquired by someone else is never
// released out from under them.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

var errNotOwner = errors.New("lock: release: not the current owner")

// Release drops the lock if it is still ours. Safe to call once after
// any Acquire success, regardless of what happened in between.
func (h *Held) Release(ctx context.Context) error {
	n, err := h.a.rdb.Eval(ctx, releaseScript, []string{h.key}, h.token).Int64()
	if err != nil {
		return fmt.Errorf("lock: release: %w", err)
	}
	if n == 0 {
		return errNotOwner
	}
	return nil
}
