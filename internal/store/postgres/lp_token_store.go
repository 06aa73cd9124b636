package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/predengine/internal/domain"
)

// LPTokenStore implements domain.LPTokenStore using PostgreSQL.
type LPTokenStore struct {
	pool *pgxpool.Pool
}

// NewLPTokenStore creates a new LPTokenStore backed by the given connection
// pool.
func NewLPTokenStore(pool *pgxpool.Pool) *LPTokenStore {
	return &LPTokenStore{pool: pool}
}

// Create inserts a freshly minted LP token receipt.
func (s *LPTokenStore) Create(ctx context.Context, t domain.LPToken) error {
	const query = `
		INSERT INTO lp_tokens (id, market_id, provider, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.MarketID, t.Provider, int64(t.Amount), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create lp token %s: %w", t.ID, err)
	}
	return nil
}

// Update rewrites a token's remaining amount after a partial burn.
func (s *LPTokenStore) Update(ctx context.Context, t domain.LPToken) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lp_tokens SET amount = $1 WHERE id = $2`,
		int64(t.Amount), t.ID)
	if err != nil {
		return fmt.Errorf("postgres: update lp token %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a fully burnt token.
func (s *LPTokenStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lp_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete lp token %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const lpTokenSelectCols = `id, market_id, provider, amount, created_at`

func scanLPTokenFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.LPToken, error) {
	var t domain.LPToken
	var amount int64
	err := scanner.Scan(&t.ID, &t.MarketID, &t.Provider, &amount, &t.CreatedAt)
	if err != nil {
		return domain.LPToken{}, err
	}
	t.Amount = uint64(amount)
	return t, nil
}

// GetByID retrieves one LP token.
func (s *LPTokenStore) GetByID(ctx context.Context, id string) (domain.LPToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+lpTokenSelectCols+` FROM lp_tokens WHERE id = $1`, id)

	t, err := scanLPTokenFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LPToken{}, domain.ErrNotFound
		}
		return domain.LPToken{}, fmt.Errorf("postgres: get lp token %s: %w", id, err)
	}
	return t, nil
}

// ListByProvider returns a provider's LP receipts across markets.
func (s *LPTokenStore) ListByProvider(ctx context.Context, provider string) ([]domain.LPToken, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lpTokenSelectCols+` FROM lp_tokens
		 WHERE provider = $1 ORDER BY created_at DESC`, provider)
	if err != nil {
		return nil, fmt.Errorf("postgres: list lp tokens by provider: %w", err)
	}
	defer rows.Close()

	var tokens []domain.LPToken
	for rows.Next() {
		t, err := scanLPTokenFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan lp token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list lp tokens by provider: %w", err)
	}
	return tokens, nil
}

// SumByMarket returns the total outstanding LP token amount for a market,
// which always equals the pool's recorded supply.
func (s *LPTokenStore) SumByMarket(ctx context.Context, marketID string) (uint64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM lp_tokens WHERE market_id = $1`,
		marketID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum lp tokens %s: %w", marketID, err)
	}
	return uint64(sum), nil
}
