package domain

import "time"

// MarketStatus is supplied by the market-lifecycle collaborator. The engine
// itself never transitions markets; services check the status before letting
// placement or swap operations through.
type MarketStatus string

const (
	MarketStatusOpen         MarketStatus = "open"
	MarketStatusTradingEnded MarketStatus = "trading_ended"
	MarketStatusResolved     MarketStatus = "resolved"
	MarketStatusVoided       MarketStatus = "voided"
)

// Market is the slice of market metadata the trading engine needs.
type Market struct {
	ID        string       `json:"id"`
	Question  string       `json:"question"`
	Status    MarketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	EndsAt    *time.Time   `json:"ends_at,omitempty"`
}

// Tradable reports whether new orders and swaps may be accepted.
func (m Market) Tradable() bool {
	return m.Status == MarketStatusOpen
}
