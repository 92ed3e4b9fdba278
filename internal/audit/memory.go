package audit

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/predictex/core/internal/domain"
)

// MemoryLog is an in-process substitute for Log, used by service-layer
// tests that should not require a running Redis instance.
type MemoryLog struct {
	mu      sync.Mutex
	seq     uint64
	entries []domain.AuditEntry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(ctx context.Context, tr domain.Trade, now time.Time) (domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	entry := domain.AuditEntry{
		ID:            formatID(now, l.seq),
		TradeID:       tr.ID,
		MarketID:      tr.MarketID,
		Outcome:       tr.Outcome,
		BuyerAddress:  tr.BuyerAddress,
		SellerAddress: tr.SellerAddress,
		BuyOrderID:    tr.BuyOrderID,
		SellOrderID:   tr.SellOrderID,
		Price:         tr.Price,
		Quantity:      tr.Quantity,
		Timestamp:     tr.Timestamp,
		LoggedAt:      now,
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

// GetForMarket returns up to limit entries for marketID, oldest first.
// limit defaults to 100 and is capped at 1000, mirroring Log.GetForMarket.
func (l *MemoryLog) GetForMarket(ctx context.Context, marketID string, limit int64) ([]domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = defaultForMarketLimit
	}
	if limit > maxForMarketLimit {
		limit = maxForMarketLimit
	}

	var out []domain.AuditEntry
	for _, e := range l.entries {
		if e.MarketID == marketID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLog) ForMarket(ctx context.Context, marketID string, from, to time.Time) ([]domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.AuditEntry
	for _, e := range l.entries {
		if e.MarketID != marketID {
			continue
		}
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (l *MemoryLog) RecentGlobal(ctx context.Context, n int64) ([]domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AuditEntry, len(l.entries))
	copy(out, l.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].LoggedAt.After(out[j].LoggedAt) })
	if int64(len(out)) > n {
		out = out[:n]
	}
	return out, nil
}

func (l *MemoryLog) Stats(ctx context.Context, marketID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for _, e := range l.entries {
		if e.MarketID == marketID {
			n++
		}
	}
	return n, nil
}

func formatID(now time.Time, seq uint64) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(seq, 10)
}
