// Package engine owns the in-memory trading aggregates. Each market has one
// order book and at most one liquidity pool; operations within a market
// serialize on that market's mutex while different markets proceed fully in
// parallel. There is no cross-market shared state.
package engine

import (
	"sync"
	"time"

	"github.com/outcomelab/predengine/internal/domain"
	"github.com/outcomelab/predengine/internal/engine/amm"
	"github.com/outcomelab/predengine/internal/engine/book"
)

// Config tunes newly created aggregates.
type Config struct {
	MinOrderAmount uint64
	AMMFeeBps      uint64
}

type bookEntry struct {
	mu   sync.Mutex
	book *book.OrderBook
}

type poolEntry struct {
	mu   sync.Mutex
	pool *amm.Pool
}

// Registry is the per-market aggregate repository. The outer map is guarded
// by its own mutex only for entry lookup/creation; all aggregate mutation
// happens under the per-entry mutex.
type Registry struct {
	cfg Config

	mu    sync.RWMutex
	books map[string]*bookEntry
	pools map[string]*poolEntry
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:   cfg,
		books: make(map[string]*bookEntry),
		pools: make(map[string]*poolEntry),
	}
}

func (r *Registry) bookEntry(marketID string) *bookEntry {
	r.mu.RLock()
	e, ok := r.books[marketID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.books[marketID]; ok {
		return e
	}
	e = &bookEntry{book: book.New(marketID, r.cfg.MinOrderAmount)}
	r.books[marketID] = e
	return e
}

// WithBook runs fn holding the market's book lock. The book is created on
// first use; book initialization is otherwise an external lifecycle concern.
func (r *Registry) WithBook(marketID string, fn func(*book.OrderBook) error) error {
	e := r.bookEntry(marketID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.book)
}

// CreatePool creates an empty active pool for a market. It fails with
// domain.ErrAlreadyExists when the market already has one.
func (r *Registry) CreatePool(marketID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[marketID]; ok {
		return domain.ErrAlreadyExists
	}
	r.pools[marketID] = &poolEntry{pool: amm.New(marketID, r.cfg.AMMFeeBps, now)}
	return nil
}

// RestorePool reinstates a persisted pool during rehydration.
func (r *Registry) RestorePool(p domain.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[p.MarketID]; ok {
		return domain.ErrAlreadyExists
	}
	r.pools[p.MarketID] = &poolEntry{pool: amm.Restore(p)}
	return nil
}

// WithPool runs fn holding the market's pool lock. It fails with
// domain.ErrNotFound when the market has no pool.
func (r *Registry) WithPool(marketID string, fn func(*amm.Pool) error) error {
	r.mu.RLock()
	e, ok := r.pools[marketID]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.pool)
}

// HasPool reports whether a market has a pool.
func (r *Registry) HasPool(marketID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pools[marketID]
	return ok
}

// Markets lists every market with a book or a pool.
func (r *Registry) Markets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.books)+len(r.pools))
	out := make([]string, 0, len(r.books)+len(r.pools))
	for id := range r.books {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for id := range r.pools {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
