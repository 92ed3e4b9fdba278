// Package domain holds the entities the exchange core operates on:
// markets, orders, trades and positions, plus the enumerations that
// constrain their fields. Nothing in this package talks to a database,
// a socket, or a clock directly — it is the shared vocabulary every
// other package imports.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus is the lifecycle state of a Market.
type MarketStatus string

const (
	MarketActive    MarketStatus = "ACTIVE"
	MarketResolved  MarketStatus = "RESOLVED"
	MarketCancelled MarketStatus = "CANCELLED"
)

// Outcome is one of the two sides of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "OPEN"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// Market is a binary prediction market. Orders and positions only exist
// under a market and cascade-delete with it (see spec §3/§6).
type Market struct {
	ID            string
	Question      string
	EndTime       time.Time
	OracleAddress string
	Status        MarketStatus
	Outcome       *Outcome // set once resolved
}

// Tradable reports whether orders may currently be accepted against m.
func (m Market) Tradable(now time.Time) bool {
	return m.Status == MarketActive && now.Before(m.EndTime)
}

// Order is a limit order, resting or historical.
type Order struct {
	ID              string
	MarketID        string
	UserAddress     string
	Side            Side
	Outcome         Outcome
	Price           decimal.Decimal
	Quantity        int64
	FilledQuantity  int64
	Status          OrderStatus
	CreatedAt       time.Time
}

// Remaining is the quantity still available to match.
func (o Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// Trade is an immutable record of one match between a taker and a maker.
type Trade struct {
	ID            string
	MarketID      string
	Outcome       Outcome
	Price         decimal.Decimal
	Quantity      int64
	MakerOrderID  string
	TakerOrderID  string
	MakerAddress  string
	TakerAddress  string
	BuyerAddress  string
	SellerAddress string
	BuyOrderID    string
	SellOrderID   string
	Timestamp     time.Time
}

// Position is a user's net share/collateral exposure in one market.
type Position struct {
	MarketID        string
	UserAddress     string
	YesShares       int64
	YesAvgPrice     decimal.Decimal
	NoShares        int64
	NoAvgPrice      decimal.Decimal
	LockedCollateral decimal.Decimal
	IsSettled       bool
}

// SharesFor returns the resting share count for the given outcome.
func (p Position) SharesFor(outcome Outcome) int64 {
	if outcome == OutcomeYes {
		return p.YesShares
	}
	return p.NoShares
}

// AvgPriceFor returns the volume-weighted average price for the given outcome.
func (p Position) AvgPriceFor(outcome Outcome) decimal.Decimal {
	if outcome == OutcomeYes {
		return p.YesAvgPrice
	}
	return p.NoAvgPrice
}

// AuditEntry is one append-only audit record of a trade.
type AuditEntry struct {
	ID            string // "<unix_millis>-<sequence>"
	TradeID       string
	MarketID      string
	Outcome       Outcome
	BuyerAddress  string
	SellerAddress string
	BuyOrderID    string
	SellOrderID   string
	Price         decimal.Decimal
	Quantity      int64
	Timestamp     time.Time
	LoggedAt      time.Time
}
