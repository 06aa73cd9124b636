package domain

import "time"

// Trade records a single fill between two crossing limit orders. The engine
// is a matching ledger only: the trade notional is what downstream
// collaborators (fee splitting, token custody) act on.
type Trade struct {
	ID          string    `json:"id"`
	MarketID    string    `json:"market_id"`
	Outcome     Outcome   `json:"outcome"`
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	Buyer       string    `json:"buyer"`
	Seller      string    `json:"seller"`
	// PriceBps is the execution price: the price of the earlier-placed
	// (resting) order, with ties resolved toward the sell side.
	PriceBps     int64     `json:"price_bps"`
	BuyPriceBps  int64     `json:"buy_price_bps"`
	SellPriceBps int64     `json:"sell_price_bps"`
	Amount       uint64    `json:"amount"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// SwapDirection names which reserve a pool swap feeds.
type SwapDirection string

const (
	SwapYesForNo SwapDirection = "yes_for_no"
	SwapNoForYes SwapDirection = "no_for_yes"
)

// Swap records a single AMM execution against a market's liquidity pool.
type Swap struct {
	ID           string        `json:"id"`
	MarketID     string        `json:"market_id"`
	Trader       string        `json:"trader"`
	Direction    SwapDirection `json:"direction"`
	InputAmount  uint64        `json:"input_amount"`
	OutputAmount uint64        `json:"output_amount"`
	FeeAmount    uint64        `json:"fee_amount"`
	ExecutedAt   time.Time     `json:"executed_at"`
}
