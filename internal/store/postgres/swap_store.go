package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/predengine/internal/domain"
)

// SwapStore implements domain.SwapStore using PostgreSQL.
type SwapStore struct {
	pool *pgxpool.Pool
}

// NewSwapStore creates a new SwapStore backed by the given connection pool.
func NewSwapStore(pool *pgxpool.Pool) *SwapStore {
	return &SwapStore{pool: pool}
}

// Insert records an AMM execution.
func (s *SwapStore) Insert(ctx context.Context, sw domain.Swap) error {
	const query = `
		INSERT INTO swaps (
			id, market_id, trader, direction,
			input_amount, output_amount, fee_amount, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		sw.ID, sw.MarketID, sw.Trader, string(sw.Direction),
		int64(sw.InputAmount), int64(sw.OutputAmount), int64(sw.FeeAmount),
		sw.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert swap %s: %w", sw.ID, err)
	}
	return nil
}

const swapSelectCols = `id, market_id, trader, direction,
	input_amount, output_amount, fee_amount, executed_at`

func scanSwapRows(rows pgx.Rows) ([]domain.Swap, error) {
	var swaps []domain.Swap
	for rows.Next() {
		var sw domain.Swap
		var input, output, fee int64
		var direction string

		err := rows.Scan(
			&sw.ID, &sw.MarketID, &sw.Trader, &direction,
			&input, &output, &fee, &sw.ExecutedAt,
		)
		if err != nil {
			return nil, err
		}
		sw.Direction = domain.SwapDirection(direction)
		sw.InputAmount = uint64(input)
		sw.OutputAmount = uint64(output)
		sw.FeeAmount = uint64(fee)
		swaps = append(swaps, sw)
	}
	return swaps, rows.Err()
}

// ListByMarket returns swaps for a market, newest first, with pagination.
func (s *SwapStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Swap, error) {
	query := `SELECT ` + swapSelectCols + ` FROM swaps WHERE market_id = $1`
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
		return nil, fmt.Errorf("postgres: list swaps by market: %w", err)
	}
	defer rows.Close()

	swaps, err := scanSwapRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan swaps by market: %w", err)
	}
	return swaps, nil
}

// ListBefore returns swaps executed strictly before the cutoff, oldest
// first. A limit of zero or below returns everything.
func (s *SwapStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Swap, error) {
	query := `SELECT ` + swapSelectCols + ` FROM swaps
		 WHERE executed_at < $1 ORDER BY executed_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list swaps before %v: %w", cutoff, err)
	}
	defer rows.Close()

	swaps, err := scanSwapRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan swaps before %v: %w", cutoff, err)
	}
	return swaps, nil
}

// DeleteBefore purges swaps executed strictly before the cutoff, returning
// the number of rows removed.
func (s *SwapStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM swaps WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete swaps before %v: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
