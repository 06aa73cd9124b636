package domain

import (
	"context"
	"time"
)

// DepthCache caches aggregated book depth for fast reads by API consumers.
type DepthCache interface {
	SetDepth(ctx context.Context, snap DepthSnapshot) error
	GetDepth(ctx context.Context, marketID string, outcome Outcome) (DepthSnapshot, error)
}

// PriceCache caches pool spot prices.
type PriceCache interface {
	SetPrices(ctx context.Context, prices PoolPrices) error
	GetPrices(ctx context.Context, marketID string) (PoolPrices, error)
}

// SignalBus is the pub/sub fan-out for engine events (trades, swaps, order
// lifecycle, liquidity changes). Publish/Subscribe is ephemeral; executions
// are additionally appended to durable streams so consumers that were offline
// can catch up via StreamRead.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides cross-process mutual exclusion per key. The in-process
// registry already serializes per-market aggregates; the lock manager extends
// that guarantee across replicas sharing one database.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits operations per key within a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
