package lock

import (
	"context"
	"time"
)

// DefaultReapInterval bounds how long a released-by-expiry admission
// lock can linger in MemoryAdmission's holder map before the sweep
// drops it. The Redis-backed Admission needs no equivalent: SET NX PX
// expires the key itself, with nothing left for a reaper to clean up.
const DefaultReapInterval = 30 * time.Second

// RunReaper runs until ctx is cancelled, periodically dropping expired
// entries from the in-process holder map. Intended to run as a
// tomb-supervised goroutine in processes that use MemoryAdmission
// outside of tests (e.g. a single-node deployment with no Redis).
func (a *MemoryAdmission) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.reapExpired()
		}
	}
}

func (a *MemoryAdmission) reapExpired() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for k, expiry := range a.holders {
		if now.After(expiry) {
			delete(a.holders, k)
		}
	}
}
