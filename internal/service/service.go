// Package service implements OrderSubmitService, the orchestration of
// spec §4.8: validate, acquire the admission lock, run one database
// transaction that inserts the order, matches it against the resident
// OrderBook, persists every trade and position delta, appends one audit
// entry per trade, and finally signs a receipt.
//
// Grounded on the teacher's internal/engine.Engine.PlaceOrder, which is
// the single call that ties order intake to matching; this version
// threads the same call through a persistence transaction, an admission
// lock and an audit append the teacher's in-memory engine has no
// equivalent of.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/book"
	"github.com/predictex/core/internal/domain"
	"github.com/predictex/core/internal/lock"
	"github.com/predictex/core/internal/match"
	"github.com/predictex/core/internal/position"
	"github.com/predictex/core/internal/signer"
	"github.com/predictex/core/internal/storage"
	"github.com/predictex/core/internal/validate"
)

// Clock supplies the single wall-clock sample a submit takes (spec §5:
// "All trades emitted from a single submit share a single wall-clock
// timestamp sample").
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGenerator issues ids for new orders and trades.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator is the production IDGenerator, grounded on the teacher's
// use of github.com/google/uuid for order and trade ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// AdmissionLocker acquires the per-(user,market) admission lock of spec
// §4.8 step 2. Satisfied by *lock.Admission (Redis) and
// *lock.MemoryAdmission (tests).
type AdmissionLocker interface {
	Acquire(ctx context.Context, userAddress, marketID string) (lock.Releaser, error)
}

// AuditRecorder appends one entry per trade. Satisfied by *audit.Log
// (Redis) and *audit.MemoryLog (tests).
type AuditRecorder interface {
	Append(ctx context.Context, tr domain.Trade, now time.Time) (domain.AuditEntry, error)
}

// ReceiptSigner produces a signed receipt for a completed submission.
// Satisfied by *signer.Signer.
type ReceiptSigner interface {
	Sign(r signer.Receipt) (signer.Signed, error)
}

// Request is the inbound order-submission payload (spec §6's POST
// /orders body, plus the resolved caller address).
type Request struct {
	UserAddress string
	MarketID    string
	Side        domain.Side
	Outcome     domain.Outcome
	Price       decimal.Decimal
	Quantity    int64
}

// OrderSubmitService is spec §4.8's submit(request) -> Receipt.
type OrderSubmitService struct {
	Gateway   storage.Gateway
	Books     *book.Registry
	Admission AdmissionLocker
	Audit     AuditRecorder
	Signer    ReceiptSigner
	Clock     Clock
	IDs       IDGenerator
}

// Submit runs the full orchestration of spec §4.8.
func (s *OrderSubmitService) Submit(ctx context.Context, req Request) (signer.Signed, *domain.Error) {
	now := s.Clock.Now()

	lookup := func(marketID string) (domain.Market, bool) {
		// Validation's market lookup reads through the same gateway the
		// transaction will re-read under isolation; a market that
		// disappears between these two reads is caught by step 3a.
		var m domain.Market
		var found bool
		_ = s.Gateway.RunTransaction(ctx, func(tx storage.Tx) error {
			got, err := tx.GetMarket(ctx, marketID)
			if err != nil {
				return nil
			}
			m, found = got, true
			return nil
		})
		return m, found
	}

	vreq := validate.Request{
		UserAddress: req.UserAddress,
		MarketID:    req.MarketID,
		Side:        req.Side,
		Outcome:     req.Outcome,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
	if verr := validate.Validate(vreq, now, lookup); verr != nil {
		return signer.Signed{}, verr
	}

	held, err := s.Admission.Acquire(ctx, req.UserAddress, req.MarketID)
	if err != nil {
		if derr, ok := err.(*domain.Error); ok {
			return signer.Signed{}, derr
		}
		return signer.Signed{}, domain.Internal("admission lock acquire failed", err)
	}
	defer func() {
		if rerr := held.Release(ctx); rerr != nil {
			log.Warn().Err(rerr).Str("userAddress", req.UserAddress).Str("marketId", req.MarketID).Msg("admission lock release failed")
		}
	}()

	taker := &domain.Order{
		ID:          s.IDs.NewID(),
		MarketID:    req.MarketID,
		UserAddress: req.UserAddress,
		Side:        req.Side,
		Outcome:     req.Outcome,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Status:      domain.OrderOpen,
		CreatedAt:   now,
	}

	b := s.Books.Get(req.MarketID, req.Outcome)
	b.Lock()
	defer b.Unlock()

	journal := newBookJournal(b)

	var result match.Result

	txErr := s.Gateway.RunTransaction(ctx, func(tx storage.Tx) error {
		journal.reset()
		result = match.Result{}
		// Undo any fill the taker picked up in a previous, failed attempt;
		// the book itself was just restored to baseline above.
		taker.FilledQuantity = 0
		taker.Status = domain.OrderOpen

		market, err := tx.GetMarket(ctx, req.MarketID)
		if err != nil {
			return domain.NotTradable(domain.ReasonNotFound, "market not found")
		}
		if !market.Tradable(now) {
			return marketNotTradableError(market, now)
		}

		if err := tx.InsertOrder(ctx, taker); err != nil {
			return domain.Internal("insert taker order failed", err)
		}

		result = match.Match(b, taker, now, s.IDs)

		for i, tr := range result.Trades {
			if err := tx.InsertTrade(ctx, tr); err != nil {
				return domain.Internal("insert trade failed", err)
			}
			if err := persistMakerUpdate(ctx, tx, result.MakerUpdates[i]); err != nil {
				return err
			}
		}

		taker.Status = statusFor(taker)
		if err := tx.UpdateOrder(ctx, taker); err != nil {
			return domain.Internal("update taker order failed", err)
		}
		if taker.Remaining() > 0 {
			if err := b.Add(taker); err != nil {
				domain.InvariantViolation("service: rest taker residual failed: " + err.Error())
			}
		}

		if err := applyPositions(ctx, tx, req.MarketID, result.Trades); err != nil {
			return err
		}

		for _, tr := range result.Trades {
			if _, err := s.Audit.Append(ctx, tr, now); err != nil {
				return domain.AuditUnavailable(err)
			}
		}

		return nil
	})

	if txErr != nil {
		journal.rollback()
		if derr, ok := txErr.(*domain.Error); ok {
			return signer.Signed{}, derr
		}
		return signer.Signed{}, domain.Internal("submit transaction failed", txErr)
	}

	tradeIDs := make([]string, 0, len(result.Trades))
	for _, tr := range result.Trades {
		tradeIDs = append(tradeIDs, tr.ID)
	}

	receipt := signer.Receipt{
		OrderID:        taker.ID,
		MarketID:       taker.MarketID,
		UserAddress:    taker.UserAddress,
		Outcome:        taker.Outcome,
		Side:           taker.Side,
		Price:          taker.Price,
		Quantity:       taker.Quantity,
		FilledQuantity: taker.FilledQuantity,
		Status:         taker.Status,
		TradeIDs:       tradeIDs,
		Trades:         result.Trades,
		Timestamp:      now,
	}

	signed, serr := s.Signer.Sign(receipt)
	if serr != nil {
		// The transaction already committed: the order exists, the
		// receipt just isn't signed. Surface the error but do not
		// retract anything.
		if derr, ok := serr.(*domain.Error); ok {
			return signer.Signed{Receipt: receipt}, derr
		}
		return signer.Signed{Receipt: receipt}, domain.SigningFailure(serr)
	}

	return signed, nil
}

func statusFor(o *domain.Order) domain.OrderStatus {
	if o.Remaining() == 0 {
		return domain.OrderFilled
	}
	if o.FilledQuantity > 0 {
		return domain.OrderPartiallyFilled
	}
	return domain.OrderOpen
}

// persistMakerUpdate writes the maker order's new fill state. mu.Order is
// the same object resident in the book, already mutated by match.Match;
// its Status still needs setting here before the write.
func persistMakerUpdate(ctx context.Context, tx storage.Tx, mu match.MakerUpdate) error {
	mu.Order.Status = statusFor(mu.Order)
	if err := tx.UpdateOrder(ctx, mu.Order); err != nil {
		return domain.Internal("update maker order failed", err)
	}
	return nil
}

func applyPositions(ctx context.Context, tx storage.Tx, marketID string, trades []domain.Trade) error {
	deltas := position.FromTrades(marketID, trades)
	for _, d := range deltas {
		pos, err := tx.GetPosition(ctx, marketID, d.UserAddress)
		if err != nil {
			return domain.Internal("read position failed", err)
		}
		switch {
		case d.Shares > 0:
			avgPrice := d.Collateral.Div(decimal.NewFromInt(d.Shares))
			pos = position.ApplyBuy(pos, d.Outcome, avgPrice, d.Shares)
			pos.LockedCollateral = pos.LockedCollateral.Add(d.Collateral)
		case d.Shares < 0:
			pos = position.ApplySell(pos, d.Outcome, -d.Shares)
			pos.LockedCollateral = pos.LockedCollateral.Add(d.Collateral) // negative: frees collateral
		}
		if err := tx.UpsertPosition(ctx, pos); err != nil {
			return domain.Internal("upsert position failed", err)
		}
	}
	return nil
}

func marketNotTradableError(m domain.Market, now time.Time) *domain.Error {
	switch m.Status {
	case domain.MarketResolved:
		return domain.NotTradable(domain.ReasonResolved, "market has resolved")
	case domain.MarketCancelled:
		return domain.NotTradable(domain.ReasonCancelled, "market has been cancelled")
	default:
		return domain.NotTradable(domain.ReasonEnded, "market trading window has ended")
	}
}
