// Package escrow provides the in-process implementation of the custody
// collaborator. The engine never touches balances; services reserve, release,
// and settle through this ledger within the same unit of work as the engine
// mutation. Production deployments replace this with the real token custody
// module behind the same interface.
package escrow

import (
	"context"
	"sync"

	"github.com/outcomelab/predengine/internal/domain"
)

type account struct {
	available uint64
	escrowed  uint64
}

type key struct {
	owner string
	asset domain.Asset
}

// Memory is a thread-safe in-memory escrow ledger.
type Memory struct {
	mu       sync.Mutex
	accounts map[key]*account
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{accounts: make(map[key]*account)}
}

func (m *Memory) account(owner string, asset domain.Asset) *account {
	k := key{owner: owner, asset: asset}
	a, ok := m.accounts[k]
	if !ok {
		a = &account{}
		m.accounts[k] = a
	}
	return a
}

// Deposit credits an owner's available balance.
func (m *Memory) Deposit(_ context.Context, owner string, asset domain.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(owner, asset).available += amount
	return nil
}

// Reserve moves amount from available into escrow.
func (m *Memory) Reserve(_ context.Context, owner string, asset domain.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(owner, asset)
	if a.available < amount {
		return domain.ErrInsufficientFunds
	}
	a.available -= amount
	a.escrowed += amount
	return nil
}

// Release moves amount from escrow back to available.
func (m *Memory) Release(_ context.Context, owner string, asset domain.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(owner, asset)
	if a.escrowed < amount {
		return domain.ErrInsufficientFunds
	}
	a.escrowed -= amount
	a.available += amount
	return nil
}

// Settle moves amount from one party's escrow to another's available balance.
func (m *Memory) Settle(_ context.Context, from, to string, asset domain.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.account(from, asset)
	if src.escrowed < amount {
		return domain.ErrInsufficientFunds
	}
	src.escrowed -= amount
	m.account(to, asset).available += amount
	return nil
}

// Balance reports available and escrowed amounts.
func (m *Memory) Balance(_ context.Context, owner string, asset domain.Asset) (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(owner, asset)
	return a.available, a.escrowed, nil
}

// Compile-time interface check.
var _ domain.Escrow = (*Memory)(nil)
