package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/predengine/internal/domain"
)

// BookStatsStore implements domain.BookStatsStore using PostgreSQL.
type BookStatsStore struct {
	pool *pgxpool.Pool
}

// NewBookStatsStore creates a new BookStatsStore backed by the given
// connection pool.
func NewBookStatsStore(pool *pgxpool.Pool) *BookStatsStore {
	return &BookStatsStore{pool: pool}
}

// Upsert writes a market's book counters.
func (s *BookStatsStore) Upsert(ctx context.Context, st domain.BookStats) error {
	const query = `
		INSERT INTO book_stats (
			market_id, next_order_id, open_orders, total_volume, trade_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			next_order_id = EXCLUDED.next_order_id,
			open_orders = EXCLUDED.open_orders,
			total_volume = EXCLUDED.total_volume,
			trade_count = EXCLUDED.trade_count,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		st.MarketID,
		int64(st.NextOrderID), int64(st.OpenOrders),
		int64(st.TotalVolume), int64(st.TradeCount),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert book stats %s: %w", st.MarketID, err)
	}
	return nil
}

// GetByMarket retrieves one market's book counters.
func (s *BookStatsStore) GetByMarket(ctx context.Context, marketID string) (domain.BookStats, error) {
	var st domain.BookStats
	var nextID, open, volume, trades int64

	err := s.pool.QueryRow(ctx,
		`SELECT market_id, next_order_id, open_orders, total_volume, trade_count
		 FROM book_stats WHERE market_id = $1`, marketID,
	).Scan(&st.MarketID, &nextID, &open, &volume, &trades)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BookStats{}, domain.ErrNotFound
		}
		return domain.BookStats{}, fmt.Errorf("postgres: get book stats %s: %w", marketID, err)
	}

	st.NextOrderID = uint64(nextID)
	st.OpenOrders = uint64(open)
	st.TotalVolume = uint64(volume)
	st.TradeCount = uint64(trades)
	return st, nil
}
