package domain

import "time"

// Price bounds and scale. Prices and probabilities are unsigned integers in
// basis points: 5000 means a 50% implied probability.
const (
	PriceScaleBps int64 = 10000
	MinPriceBps   int64 = 1
	MaxPriceBps   int64 = 9999
)

// Side indicates whether an order buys or sells outcome tokens.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Outcome is the binary outcome token an order trades.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// OrderStatus tracks the order lifecycle. Filled and cancelled orders are
// terminal and never mutate again.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Order is a resting limit order on a market's book. The engine only records
// intent: the backing tokens or collateral are escrowed by the caller before
// the order is placed, and released or delivered by the caller afterwards.
type Order struct {
	ID        uint64      `json:"id"`
	MarketID  string      `json:"market_id"`
	Maker     string      `json:"maker"`
	Side      Side        `json:"side"`
	Outcome   Outcome     `json:"outcome"`
	PriceBps  int64       `json:"price_bps"` // [1, 9999]
	Amount    uint64      `json:"amount"`
	Filled    uint64      `json:"filled"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// Remaining returns the unfilled portion of the order.
func (o Order) Remaining() uint64 {
	return o.Amount - o.Filled
}

// IsOpen reports whether the order can still be matched or cancelled.
func (o Order) IsOpen() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// BookStats are the per-market aggregate counters maintained by the book.
type BookStats struct {
	MarketID    string `json:"market_id"`
	NextOrderID uint64 `json:"next_order_id"`
	OpenOrders  uint64 `json:"open_orders"`
	TotalVolume uint64 `json:"total_volume"`
	TradeCount  uint64 `json:"trade_count"`
}

// DepthLevel is one aggregated price level of a book side.
type DepthLevel struct {
	PriceBps int64  `json:"price_bps"`
	Amount   uint64 `json:"amount"` // sum of remaining amounts at this price
	Orders   int    `json:"orders"`
}

// DepthSnapshot is the aggregated view of one outcome's book. Bids are
// ordered best (highest) price first, asks best (lowest) price first.
type DepthSnapshot struct {
	MarketID   string       `json:"market_id"`
	Outcome    Outcome      `json:"outcome"`
	Bids       []DepthLevel `json:"bids"`
	Asks       []DepthLevel `json:"asks"`
	BidAmount  uint64       `json:"bid_amount"`
	AskAmount  uint64       `json:"ask_amount"`
	BestBidBps int64        `json:"best_bid_bps"` // 0 when no bids
	BestAskBps int64        `json:"best_ask_bps"` // 0 when no asks
	Timestamp  time.Time    `json:"timestamp"`
}
