package domain

// Signal bus channels published by the engine services.
const (
	ChannelOrders    = "orders"
	ChannelTrades    = "trades"
	ChannelSwaps     = "swaps"
	ChannelLiquidity = "liquidity"
)

// StreamMessage is a single durable message read back from a bus stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
