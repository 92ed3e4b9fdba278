package book

import (
	"sync"

	"github.com/predictex/core/internal/domain"
)

// key identifies one (market, outcome) order book.
type key struct {
	marketID string
	outcome  domain.Outcome
}

// Registry is the process-wide map of (market,outcome) -> *OrderBook
// (spec §9 "Global state"). Generalizes the teacher's
// Engine.Books map[AssetType]OrderBook to a two-part key and lazy
// creation, since markets are created dynamically rather than being a
// fixed, startup-known enumeration of asset types.
type Registry struct {
	mu    sync.Mutex
	books map[key]*OrderBook
}

// NewRegistry builds an empty book registry.
func NewRegistry() *Registry {
	return &Registry{books: make(map[key]*OrderBook)}
}

// Get returns the book for (marketID, outcome), creating it empty on
// first access.
func (r *Registry) Get(marketID string, outcome domain.Outcome) *OrderBook {
	k := key{marketID, outcome}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[k]
	if !ok {
		b = New(marketID, outcome)
		r.books[k] = b
	}
	return b
}

// Set installs an already-built book, e.g. one produced by Rebuild from
// durable state at startup.
func (r *Registry) Set(marketID string, outcome domain.Outcome, b *OrderBook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[key{marketID, outcome}] = b
}
