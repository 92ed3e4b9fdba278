package lock

import (
	"context"
	"sync"
	"time"

	"github.com/predictex/core/internal/domain"
)

// MemoryAdmission is an in-process substitute for Admission, used by
// service-layer tests that should not require a running Redis instance.
type MemoryAdmission struct {
	mu      sync.Mutex
	ttl     time.Duration
	holders map[string]time.Time
}

func NewMemoryAdmission(ttl time.Duration) *MemoryAdmission {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryAdmission{ttl: ttl, holders: make(map[string]time.Time)}
}

func (a *MemoryAdmission) Acquire(ctx context.Context, userAddress, marketID string) (Releaser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := key(userAddress, marketID)
	if expiry, held := a.holders[k]; held && time.Now().Before(expiry) {
		return nil, domain.RateLimited("an order for this market is already being processed")
	}
	a.holders[k] = time.Now().Add(a.ttl)
	return &MemoryHeld{a: a, key: k}, nil
}

type MemoryHeld struct {
	a   *MemoryAdmission
	key string
}

func (h *MemoryHeld) Release(ctx context.Context) error {
	h.a.mu.Lock()
	defer h.a.mu.Unlock()
	delete(h.a.holders, h.key)
	return nil
}
