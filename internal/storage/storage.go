// Package storage implements the PersistenceGateway of spec §4.5: a
// transactional closure runner with serializable isolation per
// (market,outcome), backed by Postgres via github.com/lib/pq, with a
// bounded exponential-backoff retry on serialization conflicts (spec
// §4.5: base 50ms, cap 2s, max 3 attempts) using
// github.com/cenkalti/backoff/v4.
//
// A pure in-memory Gateway is also provided (memory.go) for tests and for
// callers that substitute storage through the trait abstraction per spec
// §9 ("testing substitutes them through the trait abstractions").
package storage

import (
	"context"
	"errors"

	"github.com/predictex/core/internal/domain"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("storage: not found")

// Gateway runs closures transactionally. Implementations (Postgres,
// in-memory) must give the closure serializable isolation.
type Gateway interface {
	RunTransaction(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of operations available inside a PersistenceGateway
// transaction (spec §4.8 step 3): re-reading market liveness, writing
// orders/trades, and upserting positions.
type Tx interface {
	GetMarket(ctx context.Context, marketID string) (domain.Market, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	UpdateOrder(ctx context.Context, o *domain.Order) error
	InsertTrade(ctx context.Context, t domain.Trade) error
	GetPosition(ctx context.Context, marketID, userAddress string) (domain.Position, error)
	UpsertPosition(ctx context.Context, p domain.Position) error
	ListRestingOrders(ctx context.Context, marketID string, outcome domain.Outcome) ([]*domain.Order, error)
}
