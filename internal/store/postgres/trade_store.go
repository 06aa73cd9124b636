package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/predengine/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Insert records a fill.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, market_id, outcome, buy_order_id, sell_order_id,
			buyer, seller, price_bps, buy_price_bps, sell_price_bps,
			amount, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.MarketID, string(t.Outcome),
		int64(t.BuyOrderID), int64(t.SellOrderID),
		t.Buyer, t.Seller,
		t.PriceBps, t.BuyPriceBps, t.SellPriceBps,
		int64(t.Amount), t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

const tradeSelectCols = `id, market_id, outcome, buy_order_id, sell_order_id,
	buyer, seller, price_bps, buy_price_bps, sell_price_bps,
	amount, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var buyID, sellID, amount int64
		var outcome string

		err := rows.Scan(
			&t.ID, &t.MarketID, &outcome, &buyID, &sellID,
			&t.Buyer, &t.Seller,
			&t.PriceBps, &t.BuyPriceBps, &t.SellPriceBps,
			&amount, &t.ExecutedAt,
		)
		if err != nil {
			return nil, err
		}
		t.Outcome = domain.Outcome(outcome)
		t.BuyOrderID = uint64(buyID)
		t.SellOrderID = uint64(sellID)
		t.Amount = uint64(amount)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListByMarket returns fills for a market, newest first, with pagination.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND executed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND executed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY executed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by market: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by market: %w", err)
	}
	return trades, nil
}

// ListBefore returns trades executed strictly before the cutoff, oldest
// first. A limit of zero or below returns everything.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades
		 WHERE executed_at < $1 ORDER BY executed_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %v: %w", cutoff, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before %v: %w", cutoff, err)
	}
	return trades, nil
}

// DeleteBefore purges trades executed strictly before the cutoff, returning
// the number of rows removed.
func (s *TradeStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trades WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %v: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
