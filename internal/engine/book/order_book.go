// Package book implements the per-market central limit order book: order
// lifecycle, keeper-driven matching with price-time priority, and read-only
// book queries. The book is a pure bookkeeping aggregate: it validates and
// records, and never moves tokens or collateral. Callers are expected to
// escrow backing assets before placing and to settle after matching, within
// the same unit of work.
package book

import (
	"time"

	"github.com/outcomelab/predengine/internal/domain"
)

// DefaultMinOrderAmount rejects dust orders when the caller does not
// configure a minimum.
const DefaultMinOrderAmount uint64 = 1_000_000

// quadrant selects one of the four side indexes.
type quadrant struct {
	side    domain.Side
	outcome domain.Outcome
}

// OrderBook is a single market's book. It is not safe for concurrent use;
// the engine registry serializes access per market.
type OrderBook struct {
	marketID       string
	minOrderAmount uint64

	orders      map[uint64]*domain.Order
	indexes     map[quadrant]*sideIndex
	nextOrderID uint64
	openOrders  uint64
	totalVolume uint64
	tradeCount  uint64
}

// MatchResult reports a successful match. Buy and Sell are copies of the
// post-match order state.
type MatchResult struct {
	Amount uint64
	// PriceBps is the execution price: the earlier-placed order's price,
	// ties resolved toward the sell side.
	PriceBps int64
	Buy      domain.Order
	Sell     domain.Order
}

// New creates an empty book for a market. minOrderAmount of zero selects
// DefaultMinOrderAmount.
func New(marketID string, minOrderAmount uint64) *OrderBook {
	if minOrderAmount == 0 {
		minOrderAmount = DefaultMinOrderAmount
	}
	b := &OrderBook{
		marketID:       marketID,
		minOrderAmount: minOrderAmount,
		orders:         make(map[uint64]*domain.Order),
		indexes:        make(map[quadrant]*sideIndex, 4),
		nextOrderID:    1,
	}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
			b.indexes[quadrant{side, outcome}] = newSideIndex(side)
		}
	}
	return b
}

// MarketID returns the market this book belongs to.
func (b *OrderBook) MarketID() string {
	return b.marketID
}

func (b *OrderBook) index(side domain.Side, outcome domain.Outcome) *sideIndex {
	return b.indexes[quadrant{side, outcome}]
}

// PlaceOrder validates and records a new resting limit order, returning its
// id. Ids are allocated monotonically and never reused.
func (b *OrderBook) PlaceOrder(maker string, side domain.Side, outcome domain.Outcome, priceBps int64, amount uint64, now time.Time) (uint64, error) {
	if priceBps < domain.MinPriceBps || priceBps > domain.MaxPriceBps {
		return 0, domain.ErrInvalidPrice
	}
	if amount < b.minOrderAmount {
		return 0, domain.ErrAmountTooSmall
	}

	id := b.nextOrderID
	b.nextOrderID++

	o := &domain.Order{
		ID:        id,
		MarketID:  b.marketID,
		Maker:     maker,
		Side:      side,
		Outcome:   outcome,
		PriceBps:  priceBps,
		Amount:    amount,
		Status:    domain.OrderStatusOpen,
		CreatedAt: now,
	}
	b.orders[id] = o
	b.index(side, outcome).insert(priceBps, id)
	b.openOrders++

	return id, nil
}

// Restore re-inserts a previously persisted order, bumping the id allocator
// past it. Used when rebuilding the in-memory book from the order store.
func (b *OrderBook) Restore(o domain.Order) error {
	if _, exists := b.orders[o.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := o
	b.orders[o.ID] = &cp
	if o.ID >= b.nextOrderID {
		b.nextOrderID = o.ID + 1
	}
	if cp.IsOpen() {
		b.index(o.Side, o.Outcome).insert(o.PriceBps, o.ID)
		b.openOrders++
	}
	return nil
}

// CancelOrder closes an open order. Only the maker may cancel, and a filled
// or cancelled order cannot be cancelled again.
func (b *OrderBook) CancelOrder(id uint64, caller string, now time.Time) (domain.Order, error) {
	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Maker != caller {
		return domain.Order{}, domain.ErrNotOrderMaker
	}
	if !o.IsOpen() {
		return domain.Order{}, domain.ErrOrderNotOpen
	}

	o.Status = domain.OrderStatusCancelled
	b.index(o.Side, o.Outcome).remove(o.PriceBps, o.ID)
	b.openOrders--

	return *o, nil
}

// MatchOrders fills two crossing orders named by a keeper. The trade amount
// is the smaller remaining quantity; both orders' fill state advances by
// exactly that amount, and the book's volume and trade counters update. The
// operation is symmetric and moves no assets: settlement of the returned
// notional is the caller's responsibility inside the same unit of work.
func (b *OrderBook) MatchOrders(buyID, sellID uint64, now time.Time) (MatchResult, error) {
	buy, ok := b.orders[buyID]
	if !ok {
		return MatchResult{}, domain.ErrOrderNotFound
	}
	sell, ok := b.orders[sellID]
	if !ok {
		return MatchResult{}, domain.ErrOrderNotFound
	}
	if !buy.IsOpen() || !sell.IsOpen() {
		return MatchResult{}, domain.ErrOrderNotOpen
	}
	if buy.Side != domain.SideBuy || sell.Side != domain.SideSell {
		return MatchResult{}, domain.ErrNoMatchingOrders
	}
	if buy.Outcome != sell.Outcome {
		return MatchResult{}, domain.ErrNoMatchingOrders
	}
	// Crossing condition: the buyer must bid at least the seller's ask.
	if buy.PriceBps < sell.PriceBps {
		return MatchResult{}, domain.ErrNoMatchingOrders
	}

	amount := buy.Remaining()
	if r := sell.Remaining(); r < amount {
		amount = r
	}

	b.fill(buy, amount)
	b.fill(sell, amount)
	b.totalVolume += amount
	b.tradeCount++

	price := sell.PriceBps
	if buy.CreatedAt.Before(sell.CreatedAt) {
		price = buy.PriceBps
	}

	return MatchResult{
		Amount:   amount,
		PriceBps: price,
		Buy:      *buy,
		Sell:     *sell,
	}, nil
}

// fill advances an order's filled quantity, transitioning status per the
// lifecycle invariant and unindexing orders that complete.
func (b *OrderBook) fill(o *domain.Order, amount uint64) {
	o.Filled += amount
	if o.Filled == o.Amount {
		o.Status = domain.OrderStatusFilled
		b.index(o.Side, o.Outcome).remove(o.PriceBps, o.ID)
		b.openOrders--
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}
}

// Order returns a copy of the order with the given id.
func (b *OrderBook) Order(id uint64) (domain.Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// BestBuy returns the open buy order with the highest price for an outcome,
// earliest placed winning ties.
func (b *OrderBook) BestBuy(outcome domain.Outcome) (domain.Order, bool) {
	return b.bestOf(domain.SideBuy, outcome)
}

// BestSell returns the open sell order with the lowest price for an outcome,
// earliest placed winning ties.
func (b *OrderBook) BestSell(outcome domain.Outcome) (domain.Order, bool) {
	return b.bestOf(domain.SideSell, outcome)
}

func (b *OrderBook) bestOf(side domain.Side, outcome domain.Outcome) (domain.Order, bool) {
	seq, ok := b.index(side, outcome).best()
	if !ok {
		return domain.Order{}, false
	}
	return *b.orders[seq], true
}

// BidAsk returns the best bid and ask prices for an outcome. A zero price
// with ok=false means that side of the book is empty.
func (b *OrderBook) BidAsk(outcome domain.Outcome) (bidBps, askBps int64, bidOK, askOK bool) {
	if o, ok := b.BestBuy(outcome); ok {
		bidBps, bidOK = o.PriceBps, true
	}
	if o, ok := b.BestSell(outcome); ok {
		askBps, askOK = o.PriceBps, true
	}
	return bidBps, askBps, bidOK, askOK
}

// Spread returns ask minus bid. ok is false unless both sides are populated.
func (b *OrderBook) Spread(outcome domain.Outcome) (int64, bool) {
	bid, ask, bidOK, askOK := b.BidAsk(outcome)
	if !bidOK || !askOK {
		return 0, false
	}
	return ask - bid, true
}

// MidPrice returns the average of best bid and ask. ok is false unless both
// sides are populated.
func (b *OrderBook) MidPrice(outcome domain.Outcome) (int64, bool) {
	bid, ask, bidOK, askOK := b.BidAsk(outcome)
	if !bidOK || !askOK {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Depth aggregates the open orders of one outcome into per-price levels,
// bids best-first and asks best-first, plus per-side remaining totals.
func (b *OrderBook) Depth(outcome domain.Outcome, now time.Time) domain.DepthSnapshot {
	snap := domain.DepthSnapshot{
		MarketID:  b.marketID,
		Outcome:   outcome,
		Timestamp: now,
	}

	snap.Bids, snap.BidAmount = b.sideLevels(domain.SideBuy, outcome)
	snap.Asks, snap.AskAmount = b.sideLevels(domain.SideSell, outcome)
	if len(snap.Bids) > 0 {
		snap.BestBidBps = snap.Bids[0].PriceBps
	}
	if len(snap.Asks) > 0 {
		snap.BestAskBps = snap.Asks[0].PriceBps
	}
	return snap
}

func (b *OrderBook) sideLevels(side domain.Side, outcome domain.Outcome) ([]domain.DepthLevel, uint64) {
	var levels []domain.DepthLevel
	var total uint64
	b.index(side, outcome).ascend(func(seq uint64) bool {
		o := b.orders[seq]
		rem := o.Remaining()
		total += rem
		if n := len(levels); n > 0 && levels[n-1].PriceBps == o.PriceBps {
			levels[n-1].Amount += rem
			levels[n-1].Orders++
		} else {
			levels = append(levels, domain.DepthLevel{
				PriceBps: o.PriceBps,
				Amount:   rem,
				Orders:   1,
			})
		}
		return true
	})
	return levels, total
}

// CountUserOrders returns the number of currently open orders for a maker.
func (b *OrderBook) CountUserOrders(maker string) int {
	count := 0
	for _, o := range b.orders {
		if o.Maker == maker && o.IsOpen() {
			count++
		}
	}
	return count
}

// OpenOrders returns copies of all open orders, in id order within each
// quadrant walk.
func (b *OrderBook) OpenOrders() []domain.Order {
	out := make([]domain.Order, 0, b.openOrders)
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
			b.index(side, outcome).ascend(func(seq uint64) bool {
				out = append(out, *b.orders[seq])
				return true
			})
		}
	}
	return out
}

// Stats returns the book's aggregate counters.
func (b *OrderBook) Stats() domain.BookStats {
	return domain.BookStats{
		MarketID:    b.marketID,
		NextOrderID: b.nextOrderID,
		OpenOrders:  b.openOrders,
		TotalVolume: b.totalVolume,
		TradeCount:  b.tradeCount,
	}
}

// RestoreStats reinstates persisted counters during rehydration. The id
// allocator only moves forward.
func (b *OrderBook) RestoreStats(stats domain.BookStats) {
	if stats.NextOrderID > b.nextOrderID {
		b.nextOrderID = stats.NextOrderID
	}
	b.totalVolume = stats.TotalVolume
	b.tradeCount = stats.TradeCount
}
