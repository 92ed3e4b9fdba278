package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/domain"
)

// sqlstateSerializationFailure / sqlstateDeadlockDetected are the Postgres SQLSTATE codes
// that mark a transaction safe to retry (spec §4.5).
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// PostgresGateway runs transactions against the tables laid out in spec
// §6 (markets, orders, user_positions, trades) using
// github.com/lib/pq, with serializable isolation and the retry policy of
// spec §4.5.
type PostgresGateway struct {
	db     *sql.DB
	policy RetryPolicy
}

// NewPostgresGateway opens a connection pool against dsn. The "postgres"
// driver is registered as a side effect of importing github.com/lib/pq.
func NewPostgresGateway(dsn string, policy RetryPolicy) (*PostgresGateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	return &PostgresGateway{db: db, policy: policy}, nil
}

func (g *PostgresGateway) Close() error { return g.db.Close() }

// RunTransaction opens a SERIALIZABLE transaction, runs fn, and commits.
// Serialization-conflict failures are retried per policy; every other
// error rolls back and propagates immediately.
func (g *PostgresGateway) RunTransaction(ctx context.Context, fn func(Tx) error) error {
	err := runWithRetry(ctx, g.policy, isSerializationConflict, func() error {
		return g.runOnce(ctx, fn)
	})
	if err != nil && isSerializationConflict(err) {
		return domain.SerializationConflict(err)
	}
	return err
}

func (g *PostgresGateway) runOnce(ctx context.Context, fn func(Tx) error) (err error) {
	sqlTx, err := g.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		err = sqlTx.Commit()
	}()

	tx := &postgresTx{tx: sqlTx}
	err = fn(tx)
	return err
}

func isSerializationConflict(err error) bool {
	var pqErr *pq.Error
	if ok := asPQError(err, &pqErr); ok {
		return pqErr.Code == sqlstateSerializationFailure || pqErr.Code == sqlstateDeadlockDetected
	}
	return false
}

func asPQError(err error, target **pq.Error) bool {
	for err != nil {
		if pe, ok := err.(*pq.Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	var m domain.Market
	var outcome sql.NullString
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, question, end_time, oracle_address, status, outcome
		FROM markets WHERE id = $1`, marketID)
	err := row.Scan(&m.ID, &m.Question, &m.EndTime, &m.OracleAddress, &m.Status, &outcome)
	if err == sql.ErrNoRows {
		return domain.Market{}, ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("storage: get market: %w", err)
	}
	if outcome.Valid {
		o := domain.Outcome(outcome.String)
		m.Outcome = &o
	}
	return m, nil
}

func (t *postgresTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, market_id, user_address, side, outcome, price, quantity, filled_quantity, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.MarketID, o.UserAddress, o.Side, o.Outcome,
		o.Price.StringFixed(8), o.Quantity, o.FilledQuantity, o.Status, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: insert order: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET filled_quantity = $1, status = $2 WHERE id = $3`,
		o.FilledQuantity, o.Status, o.ID)
	if err != nil {
		return fmt.Errorf("storage: update order: %w", err)
	}
	return nil
}

func (t *postgresTx) InsertTrade(ctx context.Context, tr domain.Trade) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO trades (id, market_id, outcome, price, quantity, maker_order_id, taker_order_id, maker_address, taker_address, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		tr.ID, tr.MarketID, tr.Outcome, tr.Price.StringFixed(8), tr.Quantity,
		tr.MakerOrderID, tr.TakerOrderID, tr.MakerAddress, tr.TakerAddress, tr.Timestamp)
	if err != nil {
		return fmt.Errorf("storage: insert trade: %w", err)
	}
	return nil
}

func (t *postgresTx) GetPosition(ctx context.Context, marketID, userAddress string) (domain.Position, error) {
	var p domain.Position
	var yesAvg, noAvg, collateral string
	row := t.tx.QueryRowContext(ctx, `
		SELECT market_id, user_address, yes_shares, yes_avg_price, no_shares, no_avg_price, locked_collateral, is_settled
		FROM user_positions WHERE market_id = $1 AND user_address = $2`, marketID, userAddress)
	err := row.Scan(&p.MarketID, &p.UserAddress, &p.YesShares, &yesAvg, &p.NoShares, &noAvg, &collateral, &p.IsSettled)
	if err == sql.ErrNoRows {
		return domain.Position{
			MarketID: marketID, UserAddress: userAddress,
			YesAvgPrice: decimal.Zero, NoAvgPrice: decimal.Zero, LockedCollateral: decimal.Zero,
		}, nil
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage: get position: %w", err)
	}
	p.YesAvgPrice = decimal.RequireFromString(yesAvg)
	p.NoAvgPrice = decimal.RequireFromString(noAvg)
	p.LockedCollateral = decimal.RequireFromString(collateral)
	return p, nil
}

func (t *postgresTx) UpsertPosition(ctx context.Context, p domain.Position) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_positions (market_id, user_address, yes_shares, yes_avg_price, no_shares, no_avg_price, locked_collateral, is_settled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (market_id, user_address) DO UPDATE SET
			yes_shares = EXCLUDED.yes_shares,
			yes_avg_price = EXCLUDED.yes_avg_price,
			no_shares = EXCLUDED.no_shares,
			no_avg_price = EXCLUDED.no_avg_price,
			locked_collateral = EXCLUDED.locked_collateral,
			is_settled = EXCLUDED.is_settled`,
		p.MarketID, p.UserAddress, p.YesShares, p.YesAvgPrice.StringFixed(8),
		p.NoShares, p.NoAvgPrice.StringFixed(8), p.LockedCollateral.StringFixed(8), p.IsSettled)
	if err != nil {
		return fmt.Errorf("storage: upsert position: %w", err)
	}
	return nil
}

func (t *postgresTx) ListRestingOrders(ctx context.Context, marketID string, outcome domain.Outcome) ([]*domain.Order, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, market_id, user_address, side, outcome, price, quantity, filled_quantity, status, created_at
		FROM orders
		WHERE market_id = $1 AND outcome = $2 AND status IN ('OPEN','PARTIALLY_FILLED')
		ORDER BY price, created_at`, marketID, outcome)
	if err != nil {
		return nil, fmt.Errorf("storage: list resting orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		var o domain.Order
		var price string
		var createdAt time.Time
		if err := rows.Scan(&o.ID, &o.MarketID, &o.UserAddress, &o.Side, &o.Outcome, &price, &o.Quantity, &o.FilledQuantity, &o.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan resting order: %w", err)
		}
		o.Price = decimal.RequireFromString(price)
		o.CreatedAt = createdAt
		out = append(out, &o)
	}
	return out, rows.Err()
}
