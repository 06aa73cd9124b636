package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata supplied by the lifecycle collaborator.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
}

// OrderStore persists limit orders. The in-memory book is authoritative
// during operation; the store is the durable record used for rehydration
// and history queries.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, marketID string, id uint64) (Order, error)
	ListOpen(ctx context.Context, marketID string) ([]Order, error)
	ListOpenByMaker(ctx context.Context, maker string) ([]Order, error)
	// MarketsWithOpen lists every market holding at least one open order,
	// regardless of market status: resting orders must rehydrate even after
	// trading ends so makers can still cancel them.
	MarketsWithOpen(ctx context.Context) ([]string, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Order, error)
}

// TradeStore persists CLOB fills.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SwapStore persists AMM executions.
type SwapStore interface {
	Insert(ctx context.Context, swap Swap) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Swap, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Swap, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PoolStore persists liquidity pool state. List returns every pool,
// deactivated ones included: providers may still exit an inactive pool, so
// all pools must survive restarts.
type PoolStore interface {
	Upsert(ctx context.Context, pool Pool) error
	GetByMarket(ctx context.Context, marketID string) (Pool, error)
	List(ctx context.Context) ([]Pool, error)
}

// LPTokenStore persists liquidity provider receipts.
type LPTokenStore interface {
	Create(ctx context.Context, token LPToken) error
	Update(ctx context.Context, token LPToken) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (LPToken, error)
	ListByProvider(ctx context.Context, provider string) ([]LPToken, error)
	SumByMarket(ctx context.Context, marketID string) (uint64, error)
}

// BookStatsStore persists per-market book counters across restarts.
type BookStatsStore interface {
	Upsert(ctx context.Context, stats BookStats) error
	GetByMarket(ctx context.Context, marketID string) (BookStats, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
