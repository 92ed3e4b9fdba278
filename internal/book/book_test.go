package book_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictex/core/internal/book"
	"github.com/predictex/core/internal/domain"
)

func newOrder(id string, side domain.Side, price string, qty int64) *domain.Order {
	return &domain.Order{
		ID:       id,
		MarketID: "m1",
		Outcome:  domain.OutcomeYes,
		Side:     side,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	}
}

func TestAdd_BestPriceAndDepth(t *testing.T) {
	b := book.New("m1", domain.OutcomeYes)

	require.NoError(t, b.Add(newOrder("b1", domain.Buy, "0.60", 100)))
	require.NoError(t, b.Add(newOrder("b2", domain.Buy, "0.55", 50)))
	require.NoError(t, b.Add(newOrder("a1", domain.Sell, "0.70", 30)))
	require.NoError(t, b.Add(newOrder("a2", domain.Sell, "0.80", 10)))

	assert.Equal(t, "b1", b.BestBid().ID)
	assert.Equal(t, "a1", b.BestAsk().ID)

	depth := b.Depth(domain.Buy, 10)
	require.Len(t, depth, 2)
	assert.True(t, depth[0].Price.Equal(decimal.RequireFromString("0.60")))
	assert.Equal(t, int64(100), depth[0].TotalQuantity)
	assert.True(t, depth[1].Price.Equal(decimal.RequireFromString("0.55")))
}

func TestAdd_DuplicateAndMismatch(t *testing.T) {
	b := book.New("m1", domain.OutcomeYes)
	require.NoError(t, b.Add(newOrder("b1", domain.Buy, "0.60", 100)))

	err := b.Add(newOrder("b1", domain.Buy, "0.61", 10))
	assert.ErrorIs(t, err, book.ErrDuplicateOrder)

	mismatch := newOrder("x1", domain.Buy, "0.5", 1)
	mismatch.MarketID = "other"
	assert.ErrorIs(t, b.Add(mismatch), book.ErrOrderBookMismatch)
}

func TestRemove_LastOrderAtLevelDeletesLevel(t *testing.T) {
	b := book.New("m1", domain.OutcomeYes)
	require.NoError(t, b.Add(newOrder("b1", domain.Buy, "0.60", 100)))

	removed, ok := b.Remove("b1")
	require.True(t, ok)
	assert.Equal(t, "b1", removed.ID)
	assert.Nil(t, b.BestBid())
	assert.Empty(t, b.Depth(domain.Buy, 10))
}

func TestUpdateQuantity_ZeroRemoves(t *testing.T) {
	b := book.New("m1", domain.OutcomeYes)
	require.NoError(t, b.Add(newOrder("b1", domain.Buy, "0.60", 100)))

	require.NoError(t, b.UpdateQuantity("b1", 40))
	assert.Equal(t, int64(40), b.BestBid().Remaining())

	require.NoError(t, b.UpdateQuantity("b1", 0))
	assert.Nil(t, b.BestBid())
}

func TestUpdateQuantity_Negative(t *testing.T) {
	b := book.New("m1", domain.OutcomeYes)
	require.NoError(t, b.Add(newOrder("b1", domain.Buy, "0.60", 100)))
	assert.ErrorIs(t, b.UpdateQuantity("b1", -1), book.ErrNegativeQuantity)
}

func TestIterate_PriceTimePriority(t *testing.T) {
	b := book.New("m1", domain.OutcomeYes)
	require.NoError(t, b.Add(newOrder("a-30", domain.Sell, "0.55", 30)))
	require.NoError(t, b.Add(newOrder("a-50", domain.Sell, "0.55", 50)))
	require.NoError(t, b.Add(newOrder("a-20", domain.Sell, "0.56", 20)))

	it := b.Iterate(domain.Sell)
	var seen []string
	for {
		o, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, o.ID)
	}
	assert.Equal(t, []string{"a-30", "a-50", "a-20"}, seen)
}

func TestIterate_TolerantOfRemovalBetweenYields(t *testing.T) {
	b := book.New("m1", domain.OutcomeYes)
	require.NoError(t, b.Add(newOrder("a1", domain.Sell, "0.55", 30)))
	require.NoError(t, b.Add(newOrder("a2", domain.Sell, "0.55", 50)))
	require.NoError(t, b.Add(newOrder("a3", domain.Sell, "0.55", 20)))

	it := b.Iterate(domain.Sell)

	first, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "a1", first.ID)

	// Remove the order that was just yielded, as the matching engine does
	// once it is fully filled, then continue iterating.
	_, removed := b.Remove("a1")
	require.True(t, removed)

	second, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "a2", second.ID)

	third, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "a3", third.ID)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestAddThenRemove_IsObservationallyIdentical(t *testing.T) {
	b := book.New("m1", domain.OutcomeYes)
	require.NoError(t, b.Add(newOrder("b1", domain.Buy, "0.60", 100)))
	before := b.Depth(domain.Buy, 10)

	require.NoError(t, b.Add(newOrder("b2", domain.Buy, "0.61", 20)))
	_, ok := b.Remove("b2")
	require.True(t, ok)

	after := b.Depth(domain.Buy, 10)
	assert.Equal(t, before, after)
}
