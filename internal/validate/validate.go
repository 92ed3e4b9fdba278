// Package validate implements the pure, synchronous order checks of spec
// §4.2: address shape, market tradability, side/outcome enums, price
// bounds, and quantity positivity. Nothing here touches a database or a
// clock beyond the now value the caller supplies.
//
// The wallet-address shape check is grounded on
// 0xtitan6-polymarket-mm/internal/exchange/auth.go, which resolves a
// wallet to a github.com/ethereum/go-ethereum/common.Address; this core
// reuses the same package's hex-address shape check rather than
// hand-rolling one, since every deployment of this exchange is expected
// to run on an EVM-style address space (spec §4.2.1: "fixed-length,
// prefixed alphabet — configured").
package validate

import (
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/domain"
)

// MarketLookup resolves a market by id. The validator is a pure function
// over its inputs, so the market lookup is injected rather than owned.
type MarketLookup func(marketID string) (domain.Market, bool)

// Request is the inbound order-submission payload prior to validation.
type Request struct {
	UserAddress string
	MarketID    string
	Side        domain.Side
	Outcome     domain.Outcome
	Price       decimal.Decimal
	Quantity    int64
}

// Validate runs every check of spec §4.2 in order, short-circuiting on
// the first failure (Validation / MarketNotTradable error).
func Validate(req Request, now time.Time, lookup MarketLookup) *domain.Error {
	if !common.IsHexAddress(req.UserAddress) {
		return domain.Validation("userAddress", "INVALID_ADDRESS", "user address is not a valid wallet address")
	}

	market, ok := lookup(req.MarketID)
	if !ok {
		return domain.NotTradable(domain.ReasonNotFound, "market not found")
	}
	switch market.Status {
	case domain.MarketResolved:
		return domain.NotTradable(domain.ReasonResolved, "market has resolved")
	case domain.MarketCancelled:
		return domain.NotTradable(domain.ReasonCancelled, "market has been cancelled")
	}
	if !now.Before(market.EndTime) {
		return domain.NotTradable(domain.ReasonEnded, "market trading window has ended")
	}

	if req.Side != domain.Buy && req.Side != domain.Sell {
		return domain.Validation("side", "INVALID_SIDE", "side must be BUY or SELL")
	}
	if req.Outcome != domain.OutcomeYes && req.Outcome != domain.OutcomeNo {
		return domain.Validation("outcome", "INVALID_OUTCOME", "outcome must be YES or NO")
	}

	f, _ := req.Price.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return domain.Validation("price", "INVALID_PRICE", "price must be a finite number")
	}
	if req.Price.LessThanOrEqual(decimal.Zero) || req.Price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return domain.Validation("price", "PRICE_OUT_OF_RANGE", "price must be strictly between 0 and 1")
	}

	if req.Quantity <= 0 {
		return domain.Validation("quantity", "INVALID_QUANTITY", "quantity must be a positive integer")
	}

	return nil
}
