package domain

import "context"

// Asset names an escrowable quantity: one of the two outcome tokens of a
// market, or the base collateral unit.
type Asset string

// CollateralAsset is the base collateral unit backing open buy orders.
const CollateralAsset Asset = "collateral"

// OutcomeAsset returns the escrow asset for an outcome token of a market.
func OutcomeAsset(marketID string, outcome Outcome) Asset {
	return Asset(marketID + ":" + string(outcome))
}

// Escrow is the custody collaborator. The engine operates purely on
// quantities and never moves assets itself; services call the escrow within
// the same unit of work as the engine mutation. Conservation of value is the
// escrow implementation's concern, not the engine's.
type Escrow interface {
	// Reserve moves amount from the owner's available balance into escrow.
	Reserve(ctx context.Context, owner string, asset Asset, amount uint64) error
	// Release returns amount from the owner's escrow to their available
	// balance (for example the unfilled remainder of a cancelled order).
	Release(ctx context.Context, owner string, asset Asset, amount uint64) error
	// Settle moves amount from one party's escrow to another party's
	// available balance.
	Settle(ctx context.Context, from, to string, asset Asset, amount uint64) error
	// Deposit credits an available balance (token custody minting entry).
	Deposit(ctx context.Context, owner string, asset Asset, amount uint64) error
	// Balance reports available and escrowed amounts for an owner and asset.
	Balance(ctx context.Context, owner string, asset Asset) (available, escrowed uint64, err error)
}
