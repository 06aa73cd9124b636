package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomelab/predengine/internal/domain"
)

// DepthCache implements domain.DepthCache using Redis sorted sets and hashes
// per market outcome.
//
// Key schema:
//
//	depth:{marketID}:{outcome}:bids - sorted set of bid prices (score = price)
//	depth:{marketID}:{outcome}:asks - sorted set of ask prices (score = price)
//	depth:{marketID}:{outcome}:bid:lvl - hash price -> "amount:orders"
//	depth:{marketID}:{outcome}:ask:lvl - hash price -> "amount:orders"
//	depth:{marketID}:{outcome}:bbo  - hash with "bid" and "ask" fields
//	depth:{marketID}:{outcome}:meta - hash with "ts", "bid_amount", "ask_amount"
type DepthCache struct {
	rdb *redis.Client
}

// NewDepthCache creates a DepthCache backed by the given Client.
func NewDepthCache(c *Client) *DepthCache {
	return &DepthCache{rdb: c.Underlying()}
}

func depthKey(marketID string, outcome domain.Outcome, suffix string) string {
	return "depth:" + marketID + ":" + string(outcome) + ":" + suffix
}

func encodeLevel(lvl domain.DepthLevel) string {
	return strconv.FormatUint(lvl.Amount, 10) + ":" + strconv.Itoa(lvl.Orders)
}

func decodeLevel(priceBps int64, raw string) domain.DepthLevel {
	lvl := domain.DepthLevel{PriceBps: priceBps}
	amountStr, ordersStr, ok := strings.Cut(raw, ":")
	if !ok {
		return lvl
	}
	lvl.Amount, _ = strconv.ParseUint(amountStr, 10, 64)
	lvl.Orders, _ = strconv.Atoi(ordersStr)
	return lvl
}

// SetDepth atomically replaces the cached depth for one market outcome.
func (dc *DepthCache) SetDepth(ctx context.Context, snap domain.DepthSnapshot) error {
	bidsKey := depthKey(snap.MarketID, snap.Outcome, "bids")
	asksKey := depthKey(snap.MarketID, snap.Outcome, "asks")
	bidLvlKey := depthKey(snap.MarketID, snap.Outcome, "bid:lvl")
	askLvlKey := depthKey(snap.MarketID, snap.Outcome, "ask:lvl")
	bboKey := depthKey(snap.MarketID, snap.Outcome, "bbo")
	metaKey := depthKey(snap.MarketID, snap.Outcome, "meta")

	pipe := dc.rdb.TxPipeline()
	pipe.Del(ctx, bidsKey, asksKey, bidLvlKey, askLvlKey, bboKey, metaKey)

	for _, lvl := range snap.Bids {
		priceStr := strconv.FormatInt(lvl.PriceBps, 10)
		pipe.ZAdd(ctx, bidsKey, redis.Z{Score: float64(lvl.PriceBps), Member: priceStr})
		pipe.HSet(ctx, bidLvlKey, priceStr, encodeLevel(lvl))
	}
	for _, lvl := range snap.Asks {
		priceStr := strconv.FormatInt(lvl.PriceBps, 10)
		pipe.ZAdd(ctx, asksKey, redis.Z{Score: float64(lvl.PriceBps), Member: priceStr})
		pipe.HSet(ctx, askLvlKey, priceStr, encodeLevel(lvl))
	}

	if snap.BestBidBps > 0 {
		pipe.HSet(ctx, bboKey, "bid", strconv.FormatInt(snap.BestBidBps, 10))
	}
	if snap.BestAskBps > 0 {
		pipe.HSet(ctx, bboKey, "ask", strconv.FormatInt(snap.BestAskBps, 10))
	}

	pipe.HSet(ctx, metaKey, map[string]any{
		"ts":         strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
		"bid_amount": strconv.FormatUint(snap.BidAmount, 10),
		"ask_amount": strconv.FormatUint(snap.AskAmount, 10),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set depth %s/%s: %w", snap.MarketID, snap.Outcome, err)
	}
	return nil
}

// GetDepth reconstructs a full DepthSnapshot from Redis. It returns
// domain.ErrNotFound if nothing is cached for the market outcome.
func (dc *DepthCache) GetDepth(ctx context.Context, marketID string, outcome domain.Outcome) (domain.DepthSnapshot, error) {
	pipe := dc.rdb.Pipeline()

	// Bids read highest first, asks lowest first.
	bidsCmd := pipe.ZRevRangeWithScores(ctx, depthKey(marketID, outcome, "bids"), 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, depthKey(marketID, outcome, "asks"), 0, -1)
	bidLvlCmd := pipe.HGetAll(ctx, depthKey(marketID, outcome, "bid:lvl"))
	askLvlCmd := pipe.HGetAll(ctx, depthKey(marketID, outcome, "ask:lvl"))
	bboCmd := pipe.HGetAll(ctx, depthKey(marketID, outcome, "bbo"))
	metaCmd := pipe.HGetAll(ctx, depthKey(marketID, outcome, "meta"))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.DepthSnapshot{}, fmt.Errorf("redis: get depth %s/%s: %w", marketID, outcome, err)
	}

	metaVals, _ := metaCmd.Result()
	if len(metaVals) == 0 {
		return domain.DepthSnapshot{}, domain.ErrNotFound
	}

	snap := domain.DepthSnapshot{
		MarketID: marketID,
		Outcome:  outcome,
	}
	if tsStr, ok := metaVals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			snap.Timestamp = time.Unix(0, tsNano)
		}
	}
	if amtStr, ok := metaVals["bid_amount"]; ok {
		snap.BidAmount, _ = strconv.ParseUint(amtStr, 10, 64)
	}
	if amtStr, ok := metaVals["ask_amount"]; ok {
		snap.AskAmount, _ = strconv.ParseUint(amtStr, 10, 64)
	}

	bidLvls, _ := bidLvlCmd.Result()
	bidsZ, _ := bidsCmd.Result()
	snap.Bids = make([]domain.DepthLevel, 0, len(bidsZ))
	for _, z := range bidsZ {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		snap.Bids = append(snap.Bids, decodeLevel(int64(z.Score), bidLvls[priceStr]))
	}

	askLvls, _ := askLvlCmd.Result()
	asksZ, _ := asksCmd.Result()
	snap.Asks = make([]domain.DepthLevel, 0, len(asksZ))
	for _, z := range asksZ {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		snap.Asks = append(snap.Asks, decodeLevel(int64(z.Score), askLvls[priceStr]))
	}

	bboVals, _ := bboCmd.Result()
	if bidStr, ok := bboVals["bid"]; ok {
		snap.BestBidBps, _ = strconv.ParseInt(bidStr, 10, 64)
	}
	if askStr, ok := bboVals["ask"]; ok {
		snap.BestAskBps, _ = strconv.ParseInt(askStr, 10, 64)
	}

	return snap, nil
}

// Compile-time interface check.
var _ domain.DepthCache = (*DepthCache)(nil)
