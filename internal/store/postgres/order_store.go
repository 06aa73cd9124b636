package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/predengine/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order into the database.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			market_id, id, maker, side, outcome,
			price_bps, amount, filled, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.MarketID, int64(o.ID), o.Maker,
		string(o.Side), string(o.Outcome),
		o.PriceBps, int64(o.Amount), int64(o.Filled),
		string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s/%d: %w", o.MarketID, o.ID, err)
	}
	return nil
}

// Update rewrites an order's fill and status fields.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE orders
		SET filled = $1, status = $2, updated_at = NOW()
		WHERE market_id = $3 AND id = $4`

	tag, err := s.pool.Exec(ctx, query,
		int64(o.Filled), string(o.Status), o.MarketID, int64(o.ID))
	if err != nil {
		return fmt.Errorf("postgres: update order %s/%d: %w", o.MarketID, o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `market_id, id, maker, side, outcome,
	price_bps, amount, filled, status, created_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var id, amount, filled int64
	var side, outcome, status string

	err := scanner.Scan(
		&o.MarketID, &id, &o.Maker,
		&side, &outcome,
		&o.PriceBps, &amount, &filled,
		&status, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.ID = uint64(id)
	o.Amount = uint64(amount)
	o.Filled = uint64(filled)
	o.Side = domain.Side(side)
	o.Outcome = domain.Outcome(outcome)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by its market-scoped id.
func (s *OrderStore) GetByID(ctx context.Context, marketID string, id uint64) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE market_id = $1 AND id = $2`,
		marketID, int64(id))

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s/%d: %w", marketID, id, err)
	}
	return o, nil
}

// ListOpen returns all open and partially filled orders on a market, oldest
// first so rehydration replays them in placement order.
func (s *OrderStore) ListOpen(ctx context.Context, marketID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE market_id = $1 AND status IN ('open', 'partially_filled')
		 ORDER BY id ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open orders: %w", err)
	}
	return orders, nil
}

// MarketsWithOpen returns the distinct markets that still hold open or
// partially filled orders.
func (s *OrderStore) MarketsWithOpen(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT market_id FROM orders
		 WHERE status IN ('open', 'partially_filled')
		 ORDER BY market_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets with open orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan market id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets with open orders: %w", err)
	}
	return ids, nil
}

// ListOpenByMaker returns a maker's open orders across all markets.
func (s *OrderStore) ListOpenByMaker(ctx context.Context, maker string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE maker = $1 AND status IN ('open', 'partially_filled')
		 ORDER BY created_at DESC`, maker)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders by maker: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open orders by maker: %w", err)
	}
	return orders, nil
}

// ListByMarket returns orders for a given market with pagination.
func (s *OrderStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list orders by market: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by market: %w", err)
	}
	return orders, nil
}
