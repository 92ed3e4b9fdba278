// Package audit implements the AuditLog of spec §4.6: an append-only,
// queryable record of every trade, backed by Redis sorted sets via
// github.com/redis/go-redis/v9.
//
// Each trade is appended once to a per-market sorted set
// ("audit:market:<id>") and once to a global stream ("audit:global").
// Each entry carries a "<unix_millis>-<sequence>" id and is scored by the
// millisecond part of that id, so entries appended within the same
// millisecond share a score. Time-range queries resolve to ZRANGEBYSCORE;
// oldest-first and newest-first listings are rank-based ZRANGE /
// ZREVRANGE calls. Retention trims the oldest entries once a market's set
// exceeds MaxEntriesPerMarket.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/domain"
)

const (
	globalKey       = "audit:global"
	marketKeyPrefix = "audit:market:"

	// defaultMaxGlobalEntries is spec §4.6's fixed global retention bound
	// (1,000,000); unlike the per-market bound it has no env override.
	defaultMaxGlobalEntries = 1_000_000

	// defaultForMarketLimit / maxForMarketLimit bound get_for_market
	// (spec §4.6): default 100, capped at 1000.
	defaultForMarketLimit = 100
	maxForMarketLimit     = 1000
)

// Log is the AuditLog component. A single Log is safe for concurrent use;
// the sequence counter disambiguates entries appended within the same
// millisecond.
type Log struct {
	rdb                 *redis.Client
	seq                 atomic.Uint64
	maxEntriesPerMarket int64
}

// New builds an AuditLog against an already-configured redis client.
// maxEntriesPerMarket is the retention bound from spec §4.6
// (MAX_AUDIT_ENTRIES_PER_MARKET); zero disables per-market trimming.
// audit:global is always trimmed to its fixed bound.
func New(rdb *redis.Client, maxEntriesPerMarket int64) *Log {
	return &Log{rdb: rdb, maxEntriesPerMarket: maxEntriesPerMarket}
}

func marketKey(marketID string) string {
	return marketKeyPrefix + marketID
}

// entryRecord is the JSON payload stored as a sorted-set member. Prices
// are carried as strings so decimal precision survives the round trip.
type entryRecord struct {
	ID            string `json:"id"`
	TradeID       string `json:"trade_id"`
	MarketID      string `json:"market_id"`
	Outcome       string `json:"outcome"`
	BuyerAddress  string `json:"buyer_address"`
	SellerAddress string `json:"seller_address"`
	BuyOrderID    string `json:"buy_order_id"`
	SellOrderID   string `json:"sell_order_id"`
	Price         string `json:"price"`
	Quantity      int64  `json:"quantity"`
	Timestamp     int64  `json:"timestamp_unix_ms"`
	LoggedAt      int64  `json:"logged_at_unix_ms"`
}

func (l *Log) nextID(now time.Time) string {
	n := l.seq.Add(1)
	return fmt.Sprintf("%d-%d", now.UnixMilli(), n)
}

// Append writes one audit entry for tr, deriving its id from now. The
// write lands in both the per-market set and the global stream; a
// failure on either leg is reported to the caller so it can roll back
// the owning transaction (spec §4.8: AuditUnavailable rolls back).
func (l *Log) Append(ctx context.Context, tr domain.Trade, now time.Time) (domain.AuditEntry, error) {
	entry := domain.AuditEntry{
		ID:            l.nextID(now),
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

	rec := entryRecord{
		ID: entry.ID, TradeID: entry.TradeID, MarketID: entry.MarketID,
		Outcome: string(entry.Outcome), BuyerAddress: entry.BuyerAddress,
		SellerAddress: entry.SellerAddress, BuyOrderID: entry.BuyOrderID,
		SellOrderID: entry.SellOrderID, Price: entry.Price.StringFixed(8),
		Quantity: entry.Quantity, Timestamp: entry.Timestamp.UnixMilli(),
		LoggedAt: entry.LoggedAt.UnixMilli(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit: marshal entry: %w", err)
	}

	score := float64(now.UnixMilli())
	member := redis.Z{Score: score, Member: payload}

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, marketKey(tr.MarketID), member)
	pipe.ZAdd(ctx, globalKey, member)
	if l.maxEntriesPerMarket > 0 {
		pipe.ZRemRangeByRank(ctx, marketKey(tr.MarketID), 0, -(l.maxEntriesPerMarket + 1))
	}
	pipe.ZRemRangeByRank(ctx, globalKey, 0, -(defaultMaxGlobalEntries + 1))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit: append: %w", err)
	}

	return entry, nil
}

// GetForMarket returns up to limit entries for marketID, oldest first
// (spec §4.6's get_for_market). limit defaults to 100 and is capped at
// 1000 regardless of what is requested.
func (l *Log) GetForMarket(ctx context.Context, marketID string, limit int64) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultForMarketLimit
	}
	if limit > maxForMarketLimit {
		limit = maxForMarketLimit
	}
	raw, err := l.rdb.ZRange(ctx, marketKey(marketID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: get for market: %w", err)
	}
	return decodeAll(raw)
}

// ForMarket returns entries for marketID with timestamps in [from, to],
// oldest first.
func (l *Log) ForMarket(ctx context.Context, marketID string, from, to time.Time) ([]domain.AuditEntry, error) {
	raw, err := l.rdb.ZRangeByScore(ctx, marketKey(marketID), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixMilli()),
		Max: fmt.Sprintf("%d", to.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: range market: %w", err)
	}
	return decodeAll(raw)
}

// RecentGlobal returns the most recent n entries across all markets,
// newest first.
func (l *Log) RecentGlobal(ctx context.Context, n int64) ([]domain.AuditEntry, error) {
	raw, err := l.rdb.ZRevRange(ctx, globalKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: recent global: %w", err)
	}
	return decodeAll(raw)
}

// Stats reports the current size of a market's audit set, for
// diagnostics and retention monitoring.
func (l *Log) Stats(ctx context.Context, marketID string) (int64, error) {
	n, err := l.rdb.ZCard(ctx, marketKey(marketID)).Result()
	if err != nil {
		return 0, fmt.Errorf("audit: stats: %w", err)
	}
	return n, nil
}

func decodeAll(raw []string) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, 0, len(raw))
	for _, s := range raw {
		var rec entryRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			log.Warn().Err(err).Msg("audit: skipping unparseable entry")
			continue
		}
		out = append(out, domain.AuditEntry{
			ID:            rec.ID,
			TradeID:       rec.TradeID,
			MarketID:      rec.MarketID,
			Outcome:       domain.Outcome(rec.Outcome),
			BuyerAddress:  rec.BuyerAddress,
			SellerAddress: rec.SellerAddress,
			BuyOrderID:    rec.BuyOrderID,
			SellOrderID:   rec.SellOrderID,
			Price:         decimal.RequireFromString(rec.Price),
			Quantity:      rec.Quantity,
			Timestamp:     time.UnixMilli(rec.Timestamp),
			LoggedAt:      time.UnixMilli(rec.LoggedAt),
		})
	}
	return out, nil
}
