// Package book implements the per-(market,outcome) in-memory order book:
// a btree-indexed set of price levels, each an arrival-ordered queue of
// resting orders, with O(1) best-price access and O(log P) insertion in
// the number of distinct price levels (spec §4.1, §9's "clean,
// language-neutral realization").
//
// Grounded on the teacher's internal/engine/orderbook.go, which indexes
// price levels with github.com/tidwall/btree.BTreeG the same way. The
// teacher's Match() drains levels from the front of a plain slice; this
// version generalizes that into an intrusive container/list.List per
// level so a resting order anywhere in the queue — not just the head —
// can be removed or resized in O(1) once its handle is known (needed here
// because the self-trade skip in spec §4.3 can leave an earlier order
// resting while a later one at the same level gets matched).
package book

import (
	"container/list"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/predictex/core/internal/domain"
)

var (
	ErrDuplicateOrder    = errors.New("order: duplicate order id")
	ErrOrderBookMismatch = errors.New("order: market/outcome mismatch")
	ErrNegativeQuantity  = errors.New("order: negative quantity")
	ErrOrderNotFound     = errors.New("order: not found")
)

// PriceLevel is one price's arrival-ordered queue of resting orders.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity int64
	orders        *list.List
}

// Orders returns the resting orders at this level in arrival order. Used
// by Snapshot; callers must not mutate the slice.
func (l *PriceLevel) Orders() []*domain.Order {
	out := make([]*domain.Order, 0, l.orders.Len())
	for e := l.orders.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*domain.Order))
	}
	return out
}

func (l *PriceLevel) OrderCount() int { return l.orders.Len() }

type handle struct {
	level *PriceLevel
	elem  *list.Element
}

// DepthEntry is one aggregated row of OrderBook.Depth.
type DepthEntry struct {
	Price         decimal.Decimal
	TotalQuantity int64
	OrderCount    int
}

// OrderBook is the per-(market,outcome) matching structure. Its mutex
// doubles as the spec §5 "matching lock": callers hold Lock/Unlock for
// the duration of a match, guaranteeing a total order over mutations.
type OrderBook struct {
	mu sync.Mutex

	MarketID string
	Outcome  domain.Outcome

	bids *btree.BTreeG[*PriceLevel] // resting BUY orders, best = highest price
	asks *btree.BTreeG[*PriceLevel] // resting SELL orders, best = lowest price

	bestBid *PriceLevel
	bestAsk *PriceLevel

	handles map[string]handle          // order id -> location
	byUser  map[string]map[string]bool // user address -> set of resident order ids
}

// New builds an empty book for one (market,outcome).
func New(marketID string, outcome domain.Outcome) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price) // descending: best bid first
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price) // ascending: best ask first
	})
	return &OrderBook{
		MarketID: marketID,
		Outcome:  outcome,
		bids:     bids,
		asks:     asks,
		handles:  make(map[string]handle),
		byUser:   make(map[string]map[string]bool),
	}
}

// Lock acquires the matching lock for this book.
func (b *OrderBook) Lock() { b.mu.Lock() }

// Unlock releases the matching lock for this book.
func (b *OrderBook) Unlock() { b.mu.Unlock() }

// Snapshot returns a deep copy of every resting order on both sides (bids
// first, then asks, level by level in price priority, arrival order within
// each level), suitable for a later ResetTo. Callers must hold the
// book's lock for the duration spanning Snapshot and any mutation they
// intend to be able to undo.
func (b *OrderBook) Snapshot() []*domain.Order {
	out := make([]*domain.Order, 0, len(b.handles))
	for _, side := range []domain.Side{domain.Buy, domain.Sell} {
		for _, level := range b.Levels(side) {
			for _, o := range level.Orders() {
				cp := *o
				out = append(out, &cp)
			}
		}
	}
	return out
}

// ResetTo discards the book's current contents and rebuilds it from
// resting, a snapshot produced by a prior call to Snapshot. Used by
// OrderSubmitService to undo in-memory book mutations when the owning
// database transaction is retried or fails (spec §4.8's closing
// paragraph: "the service records intended book mutations; on commit
// they become visible, on abort they are reversed"). Callers must hold
// the book's lock.
func (b *OrderBook) ResetTo(resting []*domain.Order) {
	b.bids = btree.NewBTreeG(func(a, c *PriceLevel) bool { return a.Price.GreaterThan(c.Price) })
	b.asks = btree.NewBTreeG(func(a, c *PriceLevel) bool { return a.Price.LessThan(c.Price) })
	b.bestBid = nil
	b.bestAsk = nil
	b.handles = make(map[string]handle)
	b.byUser = make(map[string]map[string]bool)
	for _, o := range resting {
		cp := *o
		_ = b.Add(&cp)
	}
}

func (b *OrderBook) sideTree(side domain.Side) *btree.BTreeG[*PriceLevel] {
	if side == domain.Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) restingSideOf(order *domain.Order) domain.Side {
	// A resting BUY order sits in bids; a resting SELL order sits in asks.
	return order.Side
}

// Add inserts order into its side's level at order.Price, creating the
// level if needed. Fails with ErrDuplicateOrder or ErrOrderBookMismatch.
func (b *OrderBook) Add(order *domain.Order) error {
	if order.MarketID != b.MarketID || order.Outcome != b.Outcome {
		return ErrOrderBookMismatch
	}
	if _, exists := b.handles[order.ID]; exists {
		return ErrDuplicateOrder
	}

	side := b.restingSideOf(order)
	tree := b.sideTree(side)

	probe := &PriceLevel{Price: order.Price}
	level, ok := tree.Get(probe)
	if !ok {
		level = &PriceLevel{Price: order.Price, orders: list.New()}
		tree.Set(level)
		b.refreshBestOnInsert(side, level)
	}

	elem := level.orders.PushBack(order)
	level.TotalQuantity += order.Remaining()
	b.handles[order.ID] = handle{level: level, elem: elem}

	if b.byUser[order.UserAddress] == nil {
		b.byUser[order.UserAddress] = make(map[string]bool)
	}
	b.byUser[order.UserAddress][order.ID] = true

	return nil
}

func (b *OrderBook) refreshBestOnInsert(side domain.Side, level *PriceLevel) {
	switch side {
	case domain.Buy:
		if b.bestBid == nil || level.Price.GreaterThan(b.bestBid.Price) {
			b.bestBid = level
		}
	case domain.Sell:
		if b.bestAsk == nil || level.Price.LessThan(b.bestAsk.Price) {
			b.bestAsk = level
		}
	}
}

// Remove deletes order_id from the book, returning the removed order (with
// its remaining quantity as of removal) and whether it was present.
func (b *OrderBook) Remove(orderID string) (*domain.Order, bool) {
	h, ok := b.handles[orderID]
	if !ok {
		return nil, false
	}
	order := h.elem.Value.(*domain.Order)
	b.detach(order, h)
	return order, true
}

// detach unlinks order's handle from its level and, if the level is now
// empty, deletes the level from its side's tree.
func (b *OrderBook) detach(order *domain.Order, h handle) {
	h.level.orders.Remove(h.elem)
	h.level.TotalQuantity -= order.Remaining()
	delete(b.handles, order.ID)
	if users := b.byUser[order.UserAddress]; users != nil {
		delete(users, order.ID)
		if len(users) == 0 {
			delete(b.byUser, order.UserAddress)
		}
	}

	if h.level.orders.Len() == 0 {
		side := b.restingSideOf(order)
		tree := b.sideTree(side)
		tree.Delete(h.level)
		switch side {
		case domain.Buy:
			if b.bestBid == h.level {
				b.bestBid, _ = tree.Min()
			}
		case domain.Sell:
			if b.bestAsk == h.level {
				b.bestAsk, _ = tree.Min()
			}
		}
	}
}

// UpdateQuantity sets order_id's remaining quantity to newQty. newQty==0
// removes the order; newQty<0 fails with ErrNegativeQuantity.
func (b *OrderBook) UpdateQuantity(orderID string, newQty int64) error {
	if newQty < 0 {
		return ErrNegativeQuantity
	}
	h, ok := b.handles[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order := h.elem.Value.(*domain.Order)
	if newQty == 0 {
		b.detach(order, h)
		return nil
	}
	delta := newQty - order.Remaining()
	order.FilledQuantity = order.Quantity - newQty
	h.level.TotalQuantity += delta
	return nil
}

// BestBid returns the oldest resting order at the best (highest) bid
// price, or nil if there are no bids.
func (b *OrderBook) BestBid() *domain.Order {
	if b.bestBid == nil || b.bestBid.orders.Len() == 0 {
		return nil
	}
	return b.bestBid.orders.Front().Value.(*domain.Order)
}

// BestAsk returns the oldest resting order at the best (lowest) ask
// price, or nil if there are no asks.
func (b *OrderBook) BestAsk() *domain.Order {
	if b.bestAsk == nil || b.bestAsk.orders.Len() == 0 {
		return nil
	}
	return b.bestAsk.orders.Front().Value.(*domain.Order)
}

// Depth returns the top-n aggregated levels on side, best price first.
func (b *OrderBook) Depth(side domain.Side, n int) []DepthEntry {
	tree := b.sideTree(side)
	out := make([]DepthEntry, 0, n)
	tree.Scan(func(level *PriceLevel) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, DepthEntry{
			Price:         level.Price,
			TotalQuantity: level.TotalQuantity,
			OrderCount:    level.OrderCount(),
		})
		return true
	})
	return out
}

// Levels returns every resident PriceLevel on side in price priority
// order (best first). Used by Iterate, and therefore by matching, and by
// Snapshot.
func (b *OrderBook) Levels(side domain.Side) []*PriceLevel {
	tree := b.sideTree(side)
	out := make([]*PriceLevel, 0, tree.Len())
	tree.Scan(func(level *PriceLevel) bool {
		out = append(out, level)
		return true
	})
	return out
}

// Iterator walks one side of the book in price-time priority, tolerating
// removal of the just-yielded order between calls to Next (required by
// the matching engine, spec §4.1).
type Iterator struct {
	levels   []*PriceLevel
	levelIdx int
	next     *list.Element
}

// Iterate returns a lazy price-time-priority iterator over side.
func (b *OrderBook) Iterate(side domain.Side) *Iterator {
	return &Iterator{levels: b.Levels(side)}
}

// Next returns the next order in price-time priority, or (nil, false)
// when the side is exhausted.
func (it *Iterator) Next() (*domain.Order, bool) {
	for {
		if it.next == nil {
			for it.levelIdx < len(it.levels) && it.levels[it.levelIdx].orders.Len() == 0 {
				it.levelIdx++
			}
			if it.levelIdx >= len(it.levels) {
				return nil, false
			}
			it.next = it.levels[it.levelIdx].orders.Front()
		}
		elem := it.next
		order := elem.Value.(*domain.Order)
		it.next = elem.Next()
		if it.next == nil {
			it.levelIdx++
		}
		return order, true
	}
}

// Rebuild replaces a book's contents with the given resting orders
// (status OPEN/PARTIALLY_FILLED), in arrival order (spec §8 round-trip:
// rebuilding from durable state must reproduce identical depth()).
func Rebuild(marketID string, outcome domain.Outcome, resting []*domain.Order) *OrderBook {
	b := New(marketID, outcome)
	for _, o := range resting {
		order := o
		_ = b.Add(order)
	}
	return b
}
