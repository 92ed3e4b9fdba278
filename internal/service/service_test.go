package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictex/core/internal/audit"
	"github.com/predictex/core/internal/book"
	"github.com/predictex/core/internal/domain"
	"github.com/predictex/core/internal/lock"
	"github.com/predictex/core/internal/service"
	"github.com/predictex/core/internal/signer"
	"github.com/predictex/core/internal/storage"
)

const (
	testMarketID = "m1"
	u1           = "0x0000000000000000000000000000000000000001"
	u2           = "0x0000000000000000000000000000000000000002"
	testPrivKey  = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return "id" + decimal.NewFromInt(int64(s.n)).String()
}

func newTestService(t *testing.T) (*service.OrderSubmitService, *storage.MemoryGateway, *book.Registry) {
	t.Helper()
	gw := storage.NewMemoryGateway(domain.Market{
		ID:      testMarketID,
		Status:  domain.MarketActive,
		EndTime: time.Now().Add(24 * time.Hour),
	})
	books := book.NewRegistry()
	s, err := signer.New(testPrivKey)
	require.NoError(t, err)

	svc := &service.OrderSubmitService{
		Gateway:   gw,
		Books:     books,
		Admission: lock.NewMemoryAdmission(5 * time.Second),
		Audit:     audit.NewMemoryLog(),
		Signer:    s,
		Clock:     fixedClock{t: time.Now()},
		IDs:       &seqIDs{},
	}
	return svc, gw, books
}

func TestSubmit_RestsWhenBookEmpty(t *testing.T) {
	svc, _, books := newTestService(t)
	ctx := context.Background()

	signed, err := svc.Submit(ctx, service.Request{
		UserAddress: u1, MarketID: testMarketID, Side: domain.Buy, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.60"), Quantity: 100,
	})
	require.Nil(t, err)
	assert.Equal(t, domain.OrderOpen, signed.Status)
	assert.Empty(t, signed.TradeIDs)

	b := books.Get(testMarketID, domain.OutcomeYes)
	bid := b.BestBid()
	require.NotNil(t, bid)
	assert.True(t, bid.Price.Equal(decimal.RequireFromString("0.60")))
}

func TestSubmit_ExactCrossFillsBoth(t *testing.T) {
	svc, _, books := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, service.Request{
		UserAddress: u2, MarketID: testMarketID, Side: domain.Sell, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.55"), Quantity: 100,
	})
	require.Nil(t, err)

	signed, err := svc.Submit(ctx, service.Request{
		UserAddress: u1, MarketID: testMarketID, Side: domain.Buy, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.60"), Quantity: 100,
	})
	require.Nil(t, err)

	assert.Equal(t, domain.OrderFilled, signed.Status)
	require.Len(t, signed.TradeIDs, 1)

	b := books.Get(testMarketID, domain.OutcomeYes)
	assert.Nil(t, b.BestBid())
	assert.Nil(t, b.BestAsk())
}

func TestSubmit_RejectsInvalidRequest(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, service.Request{
		UserAddress: "not-an-address", MarketID: testMarketID, Side: domain.Buy, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.60"), Quantity: 100,
	})
	require.NotNil(t, err)
	assert.Equal(t, domain.KindValidation, err.Kind)
}

func TestSubmit_RejectsMarketNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, service.Request{
		UserAddress: u1, MarketID: "missing", Side: domain.Buy, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.60"), Quantity: 100,
	})
	require.NotNil(t, err)
	assert.Equal(t, domain.KindMarketNotTradable, err.Kind)
}

func TestSubmit_SelfTradeSkippedLeavesBothResting(t *testing.T) {
	svc, _, books := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, service.Request{
		UserAddress: u1, MarketID: testMarketID, Side: domain.Sell, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.55"), Quantity: 50,
	})
	require.Nil(t, err)

	signed, err := svc.Submit(ctx, service.Request{
		UserAddress: u1, MarketID: testMarketID, Side: domain.Buy, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.60"), Quantity: 50,
	})
	require.Nil(t, err)
	assert.Empty(t, signed.TradeIDs)

	b := books.Get(testMarketID, domain.OutcomeYes)
	assert.NotNil(t, b.BestBid())
	assert.NotNil(t, b.BestAsk())
}

func TestSubmit_PositionsUpdatedAfterCross(t *testing.T) {
	svc, gw, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, service.Request{
		UserAddress: u2, MarketID: testMarketID, Side: domain.Sell, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.55"), Quantity: 100,
	})
	require.Nil(t, err)

	_, err = svc.Submit(ctx, service.Request{
		UserAddress: u1, MarketID: testMarketID, Side: domain.Buy, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.60"), Quantity: 100,
	})
	require.Nil(t, err)

	_ = gw.RunTransaction(ctx, func(tx storage.Tx) error {
		buyerPos, perr := tx.GetPosition(ctx, testMarketID, u1)
		require.NoError(t, perr)
		assert.EqualValues(t, 100, buyerPos.YesShares)
		assert.True(t, buyerPos.YesAvgPrice.Equal(decimal.RequireFromString("0.55")))

		sellerPos, perr := tx.GetPosition(ctx, testMarketID, u2)
		require.NoError(t, perr)
		assert.EqualValues(t, -100, sellerPos.YesShares)
		return nil
	})
}

func TestSubmit_AdmissionLockRejectsConcurrentSameUserMarket(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	held, err := svc.Admission.Acquire(ctx, u1, testMarketID)
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	_, serr := svc.Submit(ctx, service.Request{
		UserAddress: u1, MarketID: testMarketID, Side: domain.Buy, Outcome: domain.OutcomeYes,
		Price: decimal.RequireFromString("0.60"), Quantity: 100,
	})
	require.NotNil(t, serr)
	assert.Equal(t, domain.KindRateLimited, serr.Kind)
}
