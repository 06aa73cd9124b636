package domain

import "errors"

// Engine validation failures. Every one of these aborts the whole operation
// and leaves the aggregate unchanged; retry is a caller concern.
var (
	ErrInvalidPrice          = errors.New("price outside [1, 9999] basis points")
	ErrAmountTooSmall        = errors.New("amount below minimum order size")
	ErrOrderNotFound         = errors.New("order not found")
	ErrNotOrderMaker         = errors.New("caller is not the order maker")
	ErrOrderNotOpen          = errors.New("order is not open")
	ErrNoMatchingOrders      = errors.New("orders do not cross")
	ErrSlippageExceeded      = errors.New("swap output below minimum")
	ErrInsufficientLiquidity = errors.New("pool has insufficient liquidity")
	ErrRatioMismatch         = errors.New("deposit does not preserve pool ratio")
	ErrPoolInactive          = errors.New("pool is not active")
	ErrOverflow              = errors.New("arithmetic overflow")
)

// Service and infrastructure failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrMarketClosed      = errors.New("market is not open for trading")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient escrowed funds")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)
