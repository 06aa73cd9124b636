package domain

import "time"

// DefaultAMMFeeBps is the pool's internal swap fee, retained in the reserves.
// It is separate from the platform-wide fee module, which acts on trade
// notionals outside this engine.
const DefaultAMMFeeBps uint64 = 30

// Pool is the persisted state of a market's constant-product liquidity pool.
// The product YesReserve*NoReserve never decreases across swaps and is
// unchanged by proportional liquidity adds and removes.
type Pool struct {
	MarketID           string    `json:"market_id"`
	YesReserve         uint64    `json:"yes_reserve"`
	NoReserve          uint64    `json:"no_reserve"`
	TotalLPTokens      uint64    `json:"total_lp_tokens"`
	TotalFeesCollected uint64    `json:"total_fees_collected"`
	FeeBps             uint64    `json:"fee_bps"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// LPToken is a fungible receipt for a provider's pro-rata share of a pool.
// The outstanding LPToken amounts for a market always sum to the pool's
// TotalLPTokens.
type LPToken struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	Provider  string    `json:"provider"`
	Amount    uint64    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// PoolPrices carries the pool's spot prices in basis points. YesBps and
// NoBps always sum to exactly 10000.
type PoolPrices struct {
	MarketID string    `json:"market_id"`
	YesBps   int64     `json:"yes_bps"`
	NoBps    int64     `json:"no_bps"`
	AsOf     time.Time `json:"as_of"`
}

// SwapQuote is the read-only result of pricing a prospective swap.
type SwapQuote struct {
	Direction    SwapDirection `json:"direction"`
	InputAmount  uint64        `json:"input_amount"`
	OutputAmount uint64        `json:"output_amount"`
	FeeAmount    uint64        `json:"fee_amount"`
}
