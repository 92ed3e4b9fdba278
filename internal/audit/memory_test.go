package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictex/core/internal/audit"
	"github.com/predictex/core/internal/domain"
)

func sampleTrade(marketID string) domain.Trade {
	return domain.Trade{
		ID:            "t1",
		MarketID:      marketID,
		Outcome:       domain.OutcomeYes,
		Price:         decimal.RequireFromString("0.65"),
		Quantity:      10,
		BuyerAddress:  "0xbuyer",
		SellerAddress: "0xseller",
		BuyOrderID:    "ob",
		SellOrderID:   "os",
		Timestamp:     time.Now(),
	}
}

func TestMemoryLog_AppendAndForMarket(t *testing.T) {
	l := audit.NewMemoryLog()
	ctx := context.Background()
	now := time.Now()

	entry, err := l.Append(ctx, sampleTrade("m1"), now)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "t1", entry.TradeID)

	entries, err := l.ForMarket(ctx, "m1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].MarketID)
}

func TestMemoryLog_ForMarket_FiltersOtherMarkets(t *testing.T) {
	l := audit.NewMemoryLog()
	ctx := context.Background()
	now := time.Now()

	_, _ = l.Append(ctx, sampleTrade("m1"), now)
	_, _ = l.Append(ctx, sampleTrade("m2"), now)

	entries, err := l.ForMarket(ctx, "m1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].MarketID)
}

func TestMemoryLog_RecentGlobal_OrdersNewestFirstAndCaps(t *testing.T) {
	l := audit.NewMemoryLog()
	ctx := context.Background()
	base := time.Now()

	_, _ = l.Append(ctx, sampleTrade("m1"), base)
	_, _ = l.Append(ctx, sampleTrade("m1"), base.Add(time.Second))
	_, _ = l.Append(ctx, sampleTrade("m1"), base.Add(2*time.Second))

	recent, err := l.RecentGlobal(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].LoggedAt.After(recent[1].LoggedAt) || recent[0].LoggedAt.Equal(recent[1].LoggedAt))
}

func tradeAt(marketID string, ts time.Time) domain.Trade {
	tr := sampleTrade(marketID)
	tr.Timestamp = ts
	return tr
}

func TestMemoryLog_GetForMarket_OrdersOldestFirst(t *testing.T) {
	l := audit.NewMemoryLog()
	ctx := context.Background()
	base := time.Now()

	_, _ = l.Append(ctx, tradeAt("m1", base.Add(2*time.Second)), base)
	_, _ = l.Append(ctx, tradeAt("m1", base), base)
	_, _ = l.Append(ctx, tradeAt("m1", base.Add(time.Second)), base)

	entries, err := l.GetForMarket(ctx, "m1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Timestamp.Before(entries[1].Timestamp))
	assert.True(t, entries[1].Timestamp.Before(entries[2].Timestamp))
}

func TestMemoryLog_GetForMarket_CapsAtRequestedLimit(t *testing.T) {
	l := audit.NewMemoryLog()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		_, _ = l.Append(ctx, tradeAt("m1", base.Add(time.Duration(i)*time.Second)), base)
	}

	entries, err := l.GetForMarket(ctx, "m1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestMemoryLog_GetForMarket_CapsAboveMaxLimit(t *testing.T) {
	l := audit.NewMemoryLog()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 1005; i++ {
		_, _ = l.Append(ctx, tradeAt("m1", base.Add(time.Duration(i)*time.Second)), base)
	}

	entries, err := l.GetForMarket(ctx, "m1", 5000)
	require.NoError(t, err)
	require.Len(t, entries, 1000)
}

func TestMemoryLog_Stats(t *testing.T) {
	l := audit.NewMemoryLog()
	ctx := context.Background()
	now := time.Now()

	_, _ = l.Append(ctx, sampleTrade("m1"), now)
	_, _ = l.Append(ctx, sampleTrade("m1"), now)
	_, _ = l.Append(ctx, sampleTrade("m2"), now)

	n, err := l.Stats(ctx, "m1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestMemoryLog_AppendGeneratesUniqueIDs(t *testing.T) {
	l := audit.NewMemoryLog()
	ctx := context.Background()
	now := time.Now()

	e1, _ := l.Append(ctx, sampleTrade("m1"), now)
	e2, _ := l.Append(ctx, sampleTrade("m1"), now)
	assert.NotEqual(t, e1.ID, e2.ID)
}
