package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictex/core/internal/domain"
	"github.com/predictex/core/internal/storage"
)

func TestMemoryGateway_CommitPersistsWrites(t *testing.T) {
	gw := storage.NewMemoryGateway(domain.Market{ID: "m1", Status: domain.MarketActive, EndTime: time.Now().Add(time.Hour)})

	err := gw.RunTransaction(context.Background(), func(tx storage.Tx) error {
		return tx.InsertOrder(context.Background(), &domain.Order{ID: "o1", MarketID: "m1", Outcome: domain.OutcomeYes, Status: domain.OrderOpen})
	})
	require.NoError(t, err)

	var found bool
	_ = gw.RunTransaction(context.Background(), func(tx storage.Tx) error {
		orders, err := tx.ListRestingOrders(context.Background(), "m1", domain.OutcomeYes)
		require.NoError(t, err)
		for _, o := range orders {
			if o.ID == "o1" {
				found = true
			}
		}
		return nil
	})
	assert.True(t, found)
}

func TestMemoryGateway_RollsBackOnError(t *testing.T) {
	gw := storage.NewMemoryGateway(domain.Market{ID: "m1", Status: domain.MarketActive, EndTime: time.Now().Add(time.Hour)})

	sentinel := errors.New("boom")
	err := gw.RunTransaction(context.Background(), func(tx storage.Tx) error {
		if err := tx.InsertOrder(context.Background(), &domain.Order{ID: "o1", MarketID: "m1", Outcome: domain.OutcomeYes, Status: domain.OrderOpen}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_ = gw.RunTransaction(context.Background(), func(tx storage.Tx) error {
		orders, lerr := tx.ListRestingOrders(context.Background(), "m1", domain.OutcomeYes)
		require.NoError(t, lerr)
		assert.Empty(t, orders)
		return nil
	})
}

func TestMemoryGateway_MarketNotFound(t *testing.T) {
	gw := storage.NewMemoryGateway()
	err := gw.RunTransaction(context.Background(), func(tx storage.Tx) error {
		_, err := tx.GetMarket(context.Background(), "missing")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
