package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/outcomelab/predengine/internal/domain"
)

// In-memory store fakes backing the service tests. All of them are guarded
// by a single mutex each; the tests are mostly sequential.

type memMarkets struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarkets(markets ...domain.Market) *memMarkets {
	m := &memMarkets{markets: make(map[string]domain.Market)}
	for _, mk := range markets {
		m.markets[mk.ID] = mk
	}
	return m
}

func (m *memMarkets) Upsert(_ context.Context, market domain.Market) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets[market.ID] = market
	return nil
}

func (m *memMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return mk, nil
}

func (m *memMarkets) ListByStatus(_ context.Context, status domain.MarketStatus, _ domain.ListOpts) ([]domain.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Market
	for _, mk := range m.markets {
		if mk.Status == status {
			out = append(out, mk)
		}
	}
	return out, nil
}

type orderKey struct {
	marketID string
	id       uint64
}

type memOrders struct {
	mu     sync.Mutex
	orders map[orderKey]domain.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[orderKey]domain.Order)}
}

func (m *memOrders) Create(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := orderKey{o.MarketID, o.ID}
	if _, ok := m.orders[k]; ok {
		return domain.ErrAlreadyExists
	}
	m.orders[k] = o
	return nil
}

func (m *memOrders) Update(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := orderKey{o.MarketID, o.ID}
	if _, ok := m.orders[k]; !ok {
		return domain.ErrNotFound
	}
	m.orders[k] = o
	return nil
}

func (m *memOrders) GetByID(_ context.Context, marketID string, id uint64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderKey{marketID, id}]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) ListOpen(_ context.Context, marketID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.MarketID == marketID && o.IsOpen() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) ListOpenByMaker(_ context.Context, maker string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.Maker == maker && o.IsOpen() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) MarketsWithOpen(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, o := range m.orders {
		if o.IsOpen() && !seen[o.MarketID] {
			seen[o.MarketID] = true
			out = append(out, o.MarketID)
		}
	}
	return out, nil
}

func (m *memOrders) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.MarketID == marketID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memTrades struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (m *memTrades) Insert(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memTrades) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Trade
	for _, t := range m.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTrades) ListBefore(_ context.Context, cutoff time.Time, _ int) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Trade
	for _, t := range m.trades {
		if t.ExecutedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTrades) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.Trade
	var deleted int64
	for _, t := range m.trades {
		if t.ExecutedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	m.trades = kept
	return deleted, nil
}

type memSwaps struct {
	mu    sync.Mutex
	swaps []domain.Swap
}

func (m *memSwaps) Insert(_ context.Context, s domain.Swap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swaps = append(m.swaps, s)
	return nil
}

func (m *memSwaps) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Swap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Swap
	for _, s := range m.swaps {
		if s.MarketID == marketID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSwaps) ListBefore(_ context.Context, cutoff time.Time, _ int) ([]domain.Swap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Swap
	for _, s := range m.swaps {
		if s.ExecutedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSwaps) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.Swap
	var deleted int64
	for _, s := range m.swaps {
		if s.ExecutedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.swaps = kept
	return deleted, nil
}

type memPools struct {
	mu    sync.Mutex
	pools map[string]domain.Pool
}

func newMemPools() *memPools {
	return &memPools{pools: make(map[string]domain.Pool)}
}

func (m *memPools) Upsert(_ context.Context, p domain.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.MarketID] = p
	return nil
}

func (m *memPools) GetByMarket(_ context.Context, marketID string) (domain.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[marketID]
	if !ok {
		return domain.Pool{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPools) List(_ context.Context) ([]domain.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Pool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out, nil
}

type memLPTokens struct {
	mu     sync.Mutex
	tokens map[string]domain.LPToken
}

func newMemLPTokens() *memLPTokens {
	return &memLPTokens{tokens: make(map[string]domain.LPToken)}
}

func (m *memLPTokens) Create(_ context.Context, t domain.LPToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.tokens[t.ID] = t
	return nil
}

func (m *memLPTokens) Update(_ context.Context, t domain.LPToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.ID]; !ok {
		return domain.ErrNotFound
	}
	m.tokens[t.ID] = t
	return nil
}

func (m *memLPTokens) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tokens, id)
	return nil
}

func (m *memLPTokens) GetByID(_ context.Context, id string) (domain.LPToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return domain.LPToken{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memLPTokens) ListByProvider(_ context.Context, provider string) ([]domain.LPToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LPToken
	for _, t := range m.tokens {
		if t.Provider == provider {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memLPTokens) SumByMarket(_ context.Context, marketID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum uint64
	for _, t := range m.tokens {
		if t.MarketID == marketID {
			sum += t.Amount
		}
	}
	return sum, nil
}

type memStats struct {
	mu    sync.Mutex
	stats map[string]domain.BookStats
}

func newMemStats() *memStats {
	return &memStats{stats: make(map[string]domain.BookStats)}
}

func (m *memStats) Upsert(_ context.Context, s domain.BookStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[s.MarketID] = s
	return nil
}

func (m *memStats) GetByMarket(_ context.Context, marketID string) (domain.BookStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[marketID]
	if !ok {
		return domain.BookStats{}, domain.ErrNotFound
	}
	return s, nil
}

type memPrices struct {
	mu     sync.Mutex
	prices map[string]domain.PoolPrices
}

func newMemPrices() *memPrices {
	return &memPrices{prices: make(map[string]domain.PoolPrices)}
}

func (m *memPrices) SetPrices(_ context.Context, p domain.PoolPrices) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[p.MarketID] = p
	return nil
}

func (m *memPrices) GetPrices(_ context.Context, marketID string) (domain.PoolPrices, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[marketID]
	if !ok {
		return domain.PoolPrices{}, domain.ErrNotFound
	}
	return p, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		Event: event, Detail: detail, CreatedAt: time.Now(),
	})
	return nil
}

func (m *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

func (m *memAudit) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Event)
	}
	return out
}

// memBus records published payloads per channel.
type memBus struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{payloads: make(map[string][][]byte)}
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[channel] = append(m.payloads[channel], payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[stream] = append(m.payloads[stream], payload)
	return nil
}

func (m *memBus) StreamRead(_ context.Context, stream, _ string, count int) ([]domain.StreamMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StreamMessage
	for i, p := range m.payloads[stream] {
		if count > 0 && len(out) >= count {
			break
		}
		out = append(out, domain.StreamMessage{ID: fmt.Sprintf("%d-0", i), Payload: p})
	}
	return out, nil
}

func (m *memBus) count(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads[channel])
}
