package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/predengine/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a new PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Upsert writes a pool snapshot, inserting on first write.
func (s *PoolStore) Upsert(ctx context.Context, p domain.Pool) error {
	const query = `
		INSERT INTO pools (
			market_id, yes_reserve, no_reserve, total_lp_tokens,
			total_fees_collected, fee_bps, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (market_id) DO UPDATE SET
			yes_reserve = EXCLUDED.yes_reserve,
			no_reserve = EXCLUDED.no_reserve,
			total_lp_tokens = EXCLUDED.total_lp_tokens,
			total_fees_collected = EXCLUDED.total_fees_collected,
			fee_bps = EXCLUDED.fee_bps,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.MarketID,
		int64(p.YesReserve), int64(p.NoReserve), int64(p.TotalLPTokens),
		int64(p.TotalFeesCollected), int64(p.FeeBps),
		p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pool %s: %w", p.MarketID, err)
	}
	return nil
}

const poolSelectCols = `market_id, yes_reserve, no_reserve, total_lp_tokens,
	total_fees_collected, fee_bps, is_active, created_at, updated_at`

func scanPoolFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Pool, error) {
	var p domain.Pool
	var yes, no, lp, fees, feeBps int64

	err := scanner.Scan(
		&p.MarketID, &yes, &no, &lp,
		&fees, &feeBps, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Pool{}, err
	}
	p.YesReserve = uint64(yes)
	p.NoReserve = uint64(no)
	p.TotalLPTokens = uint64(lp)
	p.TotalFeesCollected = uint64(fees)
	p.FeeBps = uint64(feeBps)
	return p, nil
}

// GetByMarket retrieves one market's pool.
func (s *PoolStore) GetByMarket(ctx context.Context, marketID string) (domain.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolSelectCols+` FROM pools WHERE market_id = $1`, marketID)

	p, err := scanPoolFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("postgres: get pool %s: %w", marketID, err)
	}
	return p, nil
}

// List returns every pool, deactivated ones included so rehydration restores
// pools providers may still exit.
func (s *PoolStore) List(ctx context.Context) ([]domain.Pool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poolSelectCols+` FROM pools ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPoolFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	return pools, nil
}
