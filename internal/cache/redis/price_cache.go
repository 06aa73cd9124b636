package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomelab/predengine/internal/domain"
)

// priceTTL bounds staleness when the pool stops trading: a price that has
// not been refreshed within the TTL simply falls out of the cache.
const priceTTL = time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// pool prices live in a hash at "poolprice:{marketID}" with fields "yes_bps",
// "no_bps", and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func poolPriceKey(marketID string) string {
	return "poolprice:" + marketID
}

// SetPrices stores a market's latest pool spot prices.
func (pc *PriceCache) SetPrices(ctx context.Context, prices domain.PoolPrices) error {
	key := poolPriceKey(prices.MarketID)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"yes_bps": strconv.FormatInt(prices.YesBps, 10),
		"no_bps":  strconv.FormatInt(prices.NoBps, 10),
		"ts":      strconv.FormatInt(prices.AsOf.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, priceTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set pool prices %s: %w", prices.MarketID, err)
	}
	return nil
}

// GetPrices retrieves a market's cached pool prices. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID string) (domain.PoolPrices, error) {
	vals, err := pc.rdb.HGetAll(ctx, poolPriceKey(marketID)).Result()
	if err != nil {
		return domain.PoolPrices{}, fmt.Errorf("redis: get pool prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.PoolPrices{}, domain.ErrNotFound
	}

	prices := domain.PoolPrices{MarketID: marketID}

	yesStr, ok := vals["yes_bps"]
	if !ok {
		return domain.PoolPrices{}, domain.ErrNotFound
	}
	prices.YesBps, err = strconv.ParseInt(yesStr, 10, 64)
	if err != nil {
		return domain.PoolPrices{}, fmt.Errorf("redis: parse yes price %s: %w", marketID, err)
	}

	noStr, ok := vals["no_bps"]
	if !ok {
		return domain.PoolPrices{}, domain.ErrNotFound
	}
	prices.NoBps, err = strconv.ParseInt(noStr, 10, 64)
	if err != nil {
		return domain.PoolPrices{}, fmt.Errorf("redis: parse no price %s: %w", marketID, err)
	}

	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			prices.AsOf = time.Unix(0, tsNano)
		}
	}

	return prices, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
