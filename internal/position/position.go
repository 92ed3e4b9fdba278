// Package position implements the PositionCalculator of spec §4.4: given
// a batch of trades from one taker submission, derive the position delta
// for every distinct (user, outcome) touched, maintaining a
// volume-weighted average price on the buy side.
package position

import (
	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/domain"
)

// Delta is one user's change in shares/collateral for one outcome,
// produced by a batch of trades from a single submission.
type Delta struct {
	MarketID    string
	UserAddress string
	Outcome     domain.Outcome
	Shares      int64 // signed: + for buyer, - for seller
	Collateral  decimal.Decimal // signed: + for buyer, - for seller
}

type deltaKey struct {
	user    string
	outcome domain.Outcome
}

// FromTrades groups trades into per-(user,outcome) deltas (spec §4.4: the
// BUY side gains shares and locks collateral, the SELL side loses shares
// and frees collateral).
func FromTrades(marketID string, trades []domain.Trade) []Delta {
	order := make([]deltaKey, 0)
	byKey := make(map[deltaKey]*Delta)

	get := func(user string, outcome domain.Outcome) *Delta {
		k := deltaKey{user, outcome}
		d, ok := byKey[k]
		if !ok {
			d = &Delta{MarketID: marketID, UserAddress: user, Outcome: outcome, Collateral: decimal.Zero}
			byKey[k] = d
			order = append(order, k)
		}
		return d
	}

	for _, t := range trades {
		notional := t.Price.Mul(decimal.NewFromInt(t.Quantity))

		buyer := get(t.BuyerAddress, t.Outcome)
		buyer.Shares += t.Quantity
		buyer.Collateral = buyer.Collateral.Add(notional)

		seller := get(t.SellerAddress, t.Outcome)
		seller.Shares -= t.Quantity
		seller.Collateral = seller.Collateral.Sub(notional)
	}

	out := make([]Delta, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

// ApplyBuy updates a position's buy-side share count and volume-weighted
// average price after a trade of qty @ price (spec §4.4).
func ApplyBuy(pos domain.Position, outcome domain.Outcome, price decimal.Decimal, qty int64) domain.Position {
	oldShares := pos.SharesFor(outcome)
	oldAvg := pos.AvgPriceFor(outcome)

	newShares := oldShares + qty
	var newAvg decimal.Decimal
	if newShares == 0 {
		newAvg = decimal.Zero
	} else {
		numerator := oldAvg.Mul(decimal.NewFromInt(oldShares)).Add(price.Mul(decimal.NewFromInt(qty)))
		newAvg = numerator.Div(decimal.NewFromInt(newShares))
	}

	return setOutcome(pos, outcome, newShares, newAvg)
}

// ApplySell updates a position's sell-side share count. Average price is
// preserved unless the position is fully closed, in which case it resets
// to zero (spec §4.4).
func ApplySell(pos domain.Position, outcome domain.Outcome, qty int64) domain.Position {
	oldShares := pos.SharesFor(outcome)
	oldAvg := pos.AvgPriceFor(outcome)

	newShares := oldShares - qty
	newAvg := oldAvg
	if newShares == 0 {
		newAvg = decimal.Zero
	}
	return setOutcome(pos, outcome, newShares, newAvg)
}

func setOutcome(pos domain.Position, outcome domain.Outcome, shares int64, avg decimal.Decimal) domain.Position {
	if outcome == domain.OutcomeYes {
		pos.YesShares = shares
		pos.YesAvgPrice = avg
	} else {
		pos.NoShares = shares
		pos.NoAvgPrice = avg
	}
	return pos
}
