// Package match implements the MatchingEngine of spec §4.3: given a
// taker order and the current OrderBook for its (market,outcome), it
// walks resting makers in price-time priority, crosses while the taker's
// price permits, skips self-trades, and returns the resulting trades plus
// the taker's residual.
//
// Grounded on the teacher's internal/engine/orderbook.go Match(), which
// walks best-bid/best-ask and drains crossing quantity the same way; this
// version generalizes it to single-sided (taker vs. book) matching
// instead of two-sided book-vs-book sweeping, since spec §1 scopes out
// cross-outcome/auction matching — every submit has exactly one taker.
package match

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/book"
	"github.com/predictex/core/internal/domain"
)

// IDGenerator issues ids for trades produced during a match.
type IDGenerator interface {
	NewID() string
}

// MakerUpdate records a resting order's new remaining quantity after a
// match, for the caller to persist (spec §4.3's "maker_updates"). Order
// is the same *domain.Order resident in the book, already mutated to
// reflect the new fill; the caller still owns writing its new Status.
type MakerUpdate struct {
	OrderID      string
	NewRemaining int64
	Order        *domain.Order
}

// Result is the outcome of matching one taker against a book.
type Result struct {
	Trades        []domain.Trade
	TakerRemaining int64
	MakerUpdates  []MakerUpdate
}

// scale is the fixed fractional-digit scale for notional rounding
// (spec §4.3: "rounded half-to-even to the unit of the locked-collateral
// scale (8 fractional digits)").
const scale = 8

// Notional computes price*quantity rounded half-to-even at scale 8.
func Notional(price decimal.Decimal, quantity int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity)).RoundBank(scale)
}

func oppositeSide(side domain.Side) domain.Side {
	if side == domain.Buy {
		return domain.Sell
	}
	return domain.Buy
}

func crosses(taker *domain.Order, maker *domain.Order) bool {
	if taker.Side == domain.Buy {
		return !maker.Price.GreaterThan(taker.Price)
	}
	return !maker.Price.LessThan(taker.Price)
}

// Match runs the algorithm of spec §4.3. It mutates b directly (removing
// or resizing matched makers) under the assumption the caller already
// holds b's matching lock for the duration of the call. taker is mutated
// in place to reflect fills; if taker.Remaining() > 0 after the call, the
// caller is responsible for resting it via b.Add(taker) (spec step 4.8.f).
func Match(b *book.OrderBook, taker *domain.Order, now time.Time, ids IDGenerator) Result {
	if taker.MarketID != b.MarketID || taker.Outcome != b.Outcome {
		domain.InvariantViolation("match: taker (market,outcome) does not match book")
	}

	var result Result
	it := b.Iterate(oppositeSide(taker.Side))

	for taker.Remaining() > 0 {
		maker, ok := it.Next()
		if !ok {
			break
		}
		if !crosses(taker, maker) {
			break
		}
		if maker.UserAddress == taker.UserAddress {
			// Self-trade policy: skip, leave the maker resting untouched.
			continue
		}

		q := min64(taker.Remaining(), maker.Remaining())
		if q <= 0 {
			continue
		}

		taker.FilledQuantity += q
		makerNewRemaining := maker.Remaining() - q

		trade := buildTrade(b.MarketID, b.Outcome, maker.Price, q, taker, maker, now, ids.NewID())
		result.Trades = append(result.Trades, trade)
		if err := b.UpdateQuantity(maker.ID, makerNewRemaining); err != nil {
			domain.InvariantViolation("match: maker update_quantity failed: " + err.Error())
		}
		maker.FilledQuantity = maker.Quantity - makerNewRemaining

		result.MakerUpdates = append(result.MakerUpdates, MakerUpdate{
			OrderID:      maker.ID,
			NewRemaining: makerNewRemaining,
			Order:        maker,
		})
	}

	result.TakerRemaining = taker.Remaining()
	return result
}

func buildTrade(marketID string, outcome domain.Outcome, price decimal.Decimal, qty int64, taker, maker *domain.Order, now time.Time, id string) domain.Trade {
	t := domain.Trade{
		ID:           id,
		MarketID:     marketID,
		Outcome:      outcome,
		Price:        price,
		Quantity:     qty,
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		MakerAddress: maker.UserAddress,
		TakerAddress: taker.UserAddress,
		Timestamp:    now,
	}
	if taker.Side == domain.Buy {
		t.BuyerAddress, t.SellerAddress = taker.UserAddress, maker.UserAddress
		t.BuyOrderID, t.SellOrderID = taker.ID, maker.ID
	} else {
		t.BuyerAddress, t.SellerAddress = maker.UserAddress, taker.UserAddress
		t.BuyOrderID, t.SellOrderID = maker.ID, taker.ID
	}
	return t
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
