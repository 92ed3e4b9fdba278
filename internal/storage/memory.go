package storage

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/domain"
)

// MemoryGateway is an in-process Gateway used by tests and by any caller
// that substitutes storage through the Gateway trait (spec §9). It gives
// the closure a globally-exclusive critical section rather than true
// serializable isolation, which is sufficient for single-process testing.
type MemoryGateway struct {
	mu        sync.Mutex
	markets   map[string]domain.Market
	orders    map[string]*domain.Order
	trades    []domain.Trade
	positions map[positionKey]domain.Position
}

type positionKey struct {
	marketID string
	user     string
}

// NewMemoryGateway builds an empty in-memory gateway seeded with markets.
func NewMemoryGateway(markets ...domain.Market) *MemoryGateway {
	g := &MemoryGateway{
		markets:   make(map[string]domain.Market),
		orders:    make(map[string]*domain.Order),
		positions: make(map[positionKey]domain.Position),
	}
	for _, m := range markets {
		g.markets[m.ID] = m
	}
	return g
}

// PutMarket inserts or replaces a market row directly (test setup helper).
func (g *MemoryGateway) PutMarket(m domain.Market) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markets[m.ID] = m
}

// RunTransaction executes fn holding the gateway's single lock, snapshotting
// state first and restoring it if fn returns an error (spec §4.5:
// "Rollback is implicit on any thrown error").
func (g *MemoryGateway) RunTransaction(ctx context.Context, fn func(Tx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot := g.snapshot()
	tx := &memoryTx{g: g}
	if err := fn(tx); err != nil {
		g.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	orders    map[string]*domain.Order
	trades    []domain.Trade
	positions map[positionKey]domain.Position
}

func (g *MemoryGateway) snapshot() memorySnapshot {
	orders := make(map[string]*domain.Order, len(g.orders))
	for id, o := range g.orders {
		cp := *o
		orders[id] = &cp
	}
	positions := make(map[positionKey]domain.Position, len(g.positions))
	for k, p := range g.positions {
		positions[k] = p
	}
	trades := make([]domain.Trade, len(g.trades))
	copy(trades, g.trades)
	return memorySnapshot{orders: orders, trades: trades, positions: positions}
}

func (g *MemoryGateway) restore(s memorySnapshot) {
	g.orders = s.orders
	g.trades = s.trades
	g.positions = s.positions
}

type memoryTx struct {
	g *MemoryGateway
}

func (t *memoryTx) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, ok := t.g.markets[marketID]
	if !ok {
		return domain.Market{}, ErrNotFound
	}
	return m, nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	cp := *o
	t.g.orders[o.ID] = &cp
	return nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	existing, ok := t.g.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	existing.FilledQuantity = o.FilledQuantity
	existing.Status = o.Status
	return nil
}

func (t *memoryTx) InsertTrade(ctx context.Context, tr domain.Trade) error {
	t.g.trades = append(t.g.trades, tr)
	return nil
}

func (t *memoryTx) GetPosition(ctx context.Context, marketID, userAddress string) (domain.Position, error) {
	p, ok := t.g.positions[positionKey{marketID, userAddress}]
	if !ok {
		return domain.Position{
			MarketID: marketID, UserAddress: userAddress,
			YesAvgPrice: decimal.Zero, NoAvgPrice: decimal.Zero, LockedCollateral: decimal.Zero,
		}, nil
	}
	return p, nil
}

func (t *memoryTx) UpsertPosition(ctx context.Context, p domain.Position) error {
	t.g.positions[positionKey{p.MarketID, p.UserAddress}] = p
	return nil
}

func (t *memoryTx) ListRestingOrders(ctx context.Context, marketID string, outcome domain.Outcome) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range t.g.orders {
		if o.MarketID != marketID || o.Outcome != outcome {
			continue
		}
		if o.Status != domain.OrderOpen && o.Status != domain.OrderPartiallyFilled {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}
