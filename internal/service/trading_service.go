// Package service implements the transactional layer around the in-memory
// trading engine: market-status gating, escrow coordination, persistence,
// cache refresh, and event publication. Services are the "caller" the engine
// contract refers to — every engine mutation and its associated asset
// movement happen inside one service method.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/outcomelab/predengine/internal/domain"
	"github.com/outcomelab/predengine/internal/engine"
	"github.com/outcomelab/predengine/internal/engine/book"
)

// TradingService drives the order book: placement, cancellation, and
// keeper-submitted matching, plus book queries.
type TradingService struct {
	registry *engine.Registry
	markets  domain.MarketStore
	orders   domain.OrderStore
	trades   domain.TradeStore
	stats    domain.BookStatsStore
	escrow   domain.Escrow
	depth    domain.DepthCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	limiter  domain.RateLimiter
	rate     int
	logger   *slog.Logger
}

// TradingServiceDeps bundles the collaborators a TradingService needs.
// Depth, Bus, Audit, and Limiter are optional; nil disables them.
type TradingServiceDeps struct {
	Registry *engine.Registry
	Markets  domain.MarketStore
	Orders   domain.OrderStore
	Trades   domain.TradeStore
	Stats    domain.BookStatsStore
	Escrow   domain.Escrow
	Depth    domain.DepthCache
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Limiter  domain.RateLimiter
	// OrderRateLimit caps placements per maker per second when Limiter is
	// set. Zero means the default of 10.
	OrderRateLimit int
}

// NewTradingService creates a TradingService.
func NewTradingService(deps TradingServiceDeps, logger *slog.Logger) *TradingService {
	return &TradingService{
		registry: deps.Registry,
		markets:  deps.Markets,
		orders:   deps.Orders,
		trades:   deps.Trades,
		stats:    deps.Stats,
		escrow:   deps.Escrow,
		depth:    deps.Depth,
		bus:      deps.Bus,
		audit:    deps.Audit,
		limiter:  deps.Limiter,
		rate:     deps.OrderRateLimit,
		logger:   logger.With(slog.String("component", "trading_service")),
	}
}

// PlaceOrderRequest carries the parameters of a new limit order.
type PlaceOrderRequest struct {
	MarketID string
	Maker    string
	Side     domain.Side
	Outcome  domain.Outcome
	PriceBps int64
	Amount   uint64
}

// orderEscrow returns who escrows what for an order: buyers lock collateral
// for the notional at their limit price, sellers lock the outcome tokens.
func orderEscrow(o domain.Order, amount uint64) (domain.Asset, uint64, error) {
	if o.Side == domain.SideBuy {
		cost, err := notional(amount, o.PriceBps)
		if err != nil {
			return "", 0, err
		}
		return domain.CollateralAsset, cost, nil
	}
	return domain.OutcomeAsset(o.MarketID, o.Outcome), amount, nil
}

// PlaceOrder validates the market, escrows the backing asset, records the
// order in the book, and persists and publishes it.
func (s *TradingService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	if err := s.gateMarket(ctx, req.MarketID); err != nil {
		return domain.Order{}, err
	}

	if s.limiter != nil {
		rate := s.rate
		if rate <= 0 {
			rate = 10
		}
		allowed, err := s.limiter.Allow(ctx, "orders:"+req.Maker, rate, time.Second)
		if err != nil {
			return domain.Order{}, fmt.Errorf("trading_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Order{}, domain.ErrRateLimited
		}
	}

	probe := domain.Order{
		MarketID: req.MarketID,
		Side:     req.Side,
		Outcome:  req.Outcome,
		PriceBps: req.PriceBps,
	}
	asset, lock, err := orderEscrow(probe, req.Amount)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.escrow.Reserve(ctx, req.Maker, asset, lock); err != nil {
		return domain.Order{}, fmt.Errorf("trading_service: reserve escrow: %w", err)
	}

	var placed domain.Order
	now := time.Now().UTC()
	err = s.registry.WithBook(req.MarketID, func(b *book.OrderBook) error {
		id, err := b.PlaceOrder(req.Maker, req.Side, req.Outcome, req.PriceBps, req.Amount, now)
		if err != nil {
			return err
		}
		placed, _ = b.Order(id)
		s.refreshDepth(ctx, b, req.Outcome, now)
		return nil
	})
	if err != nil {
		// The book rejected the order; hand the reservation back.
		if relErr := s.escrow.Release(ctx, req.Maker, asset, lock); relErr != nil {
			s.logger.ErrorContext(ctx, "escrow release after rejected order failed",
				slog.String("maker", req.Maker),
				slog.String("error", relErr.Error()),
			)
		}
		return domain.Order{}, err
	}

	if err := s.orders.Create(ctx, placed); err != nil {
		return domain.Order{}, fmt.Errorf("trading_service: persist order: %w", err)
	}
	s.persistStats(ctx, req.MarketID)
	s.publish(ctx, domain.ChannelOrders, map[string]any{
		"event":     "order_placed",
		"market_id": placed.MarketID,
		"order_id":  placed.ID,
		"maker":     placed.Maker,
		"side":      placed.Side,
		"outcome":   placed.Outcome,
		"price_bps": placed.PriceBps,
		"amount":    placed.Amount,
	})
	s.auditLog(ctx, "order_placed", map[string]any{
		"market_id": placed.MarketID,
		"order_id":  placed.ID,
		"maker":     placed.Maker,
	})

	return placed, nil
}

// CancelOrder closes an open order on behalf of its maker and releases the
// escrow backing the unfilled remainder.
func (s *TradingService) CancelOrder(ctx context.Context, marketID string, orderID uint64, caller string) (domain.Order, error) {
	var cancelled domain.Order
	var remaining uint64
	now := time.Now().UTC()

	err := s.registry.WithBook(marketID, func(b *book.OrderBook) error {
		before, ok := b.Order(orderID)
		if ok {
			remaining = before.Remaining()
		}
		o, err := b.CancelOrder(orderID, caller, now)
		if err != nil {
			return err
		}
		cancelled = o
		s.refreshDepth(ctx, b, o.Outcome, now)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	asset, lock, err := orderEscrow(cancelled, remaining)
	if err == nil && lock > 0 {
		if relErr := s.escrow.Release(ctx, caller, asset, lock); relErr != nil {
			s.logger.ErrorContext(ctx, "escrow release on cancel failed",
				slog.Uint64("order_id", orderID),
				slog.String("error", relErr.Error()),
			)
		}
	}

	if err := s.orders.Update(ctx, cancelled); err != nil {
		return domain.Order{}, fmt.Errorf("trading_service: persist cancel: %w", err)
	}
	s.persistStats(ctx, marketID)
	s.publish(ctx, domain.ChannelOrders, map[string]any{
		"event":     "order_cancelled",
		"market_id": marketID,
		"order_id":  orderID,
	})
	s.auditLog(ctx, "order_cancelled", map[string]any{
		"market_id": marketID,
		"order_id":  orderID,
		"caller":    caller,
	})

	return cancelled, nil
}

// MatchOrders fills two crossing orders named by a keeper and settles the
// trade: the buyer's escrowed collateral moves to the seller, the seller's
// escrowed outcome tokens move to the buyer, and any collateral locked above
// the execution price returns to the buyer.
func (s *TradingService) MatchOrders(ctx context.Context, marketID string, buyID, sellID uint64) (domain.Trade, error) {
	var res book.MatchResult
	now := time.Now().UTC()

	err := s.registry.WithBook(marketID, func(b *book.OrderBook) error {
		r, err := b.MatchOrders(buyID, sellID, now)
		if err != nil {
			return err
		}
		res = r
		s.refreshDepth(ctx, b, r.Buy.Outcome, now)
		return nil
	})
	if err != nil {
		return domain.Trade{}, err
	}

	trade := domain.Trade{
		ID:           uuid.New().String(),
		MarketID:     marketID,
		Outcome:      res.Buy.Outcome,
		BuyOrderID:   res.Buy.ID,
		SellOrderID:  res.Sell.ID,
		Buyer:        res.Buy.Maker,
		Seller:       res.Sell.Maker,
		PriceBps:     res.PriceBps,
		BuyPriceBps:  res.Buy.PriceBps,
		SellPriceBps: res.Sell.PriceBps,
		Amount:       res.Amount,
		ExecutedAt:   now,
	}

	// The book has already applied the fill, so the trade is recorded either
	// way; a failed escrow movement is flagged for operator reconciliation.
	if err := s.settleTrade(ctx, trade); err != nil {
		s.logger.ErrorContext(ctx, "trade settlement failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()),
		)
		s.auditLog(ctx, "trade_settlement_failed", map[string]any{
			"market_id": marketID,
			"trade_id":  trade.ID,
			"buy_id":    buyID,
			"sell_id":   sellID,
			"error":     err.Error(),
		})
	}

	if err := s.orders.Update(ctx, res.Buy); err != nil {
		return domain.Trade{}, fmt.Errorf("trading_service: persist buy fill: %w", err)
	}
	if err := s.orders.Update(ctx, res.Sell); err != nil {
		return domain.Trade{}, fmt.Errorf("trading_service: persist sell fill: %w", err)
	}
	if err := s.trades.Insert(ctx, trade); err != nil {
		return domain.Trade{}, fmt.Errorf("trading_service: persist trade: %w", err)
	}
	s.persistStats(ctx, marketID)

	payload, _ := json.Marshal(trade)
	if s.bus != nil {
		if err := s.bus.Publish(ctx, domain.ChannelTrades, payload); err != nil {
			s.logger.WarnContext(ctx, "publish trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
		// Durable copy for consumers that were offline during the fill.
		if err := s.bus.StreamAppend(ctx, "stream:"+domain.ChannelTrades, payload); err != nil {
			s.logger.WarnContext(ctx, "stream append trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.auditLog(ctx, "orders_matched", map[string]any{
		"market_id": marketID,
		"trade_id":  trade.ID,
		"buy_id":    buyID,
		"sell_id":   sellID,
		"amount":    trade.Amount,
	})

	return trade, nil
}

// settleTrade performs the escrow legs of a fill. The fee collaborator acts
// on the published trade notional separately; nothing is deducted here.
func (s *TradingService) settleTrade(ctx context.Context, t domain.Trade) error {
	cost, err := notional(t.Amount, t.PriceBps)
	if err != nil {
		return err
	}
	if err := s.escrow.Settle(ctx, t.Buyer, t.Seller, domain.CollateralAsset, cost); err != nil {
		return fmt.Errorf("collateral leg: %w", err)
	}
	token := domain.OutcomeAsset(t.MarketID, t.Outcome)
	if err := s.escrow.Settle(ctx, t.Seller, t.Buyer, token, t.Amount); err != nil {
		return fmt.Errorf("token leg: %w", err)
	}
	// The buyer locked collateral at their limit price; refund the surplus
	// when the trade executed below it.
	if t.BuyPriceBps > t.PriceBps {
		locked, err := notional(t.Amount, t.BuyPriceBps)
		if err != nil {
			return err
		}
		if surplus := locked - cost; surplus > 0 {
			if err := s.escrow.Release(ctx, t.Buyer, domain.CollateralAsset, surplus); err != nil {
				return fmt.Errorf("surplus refund: %w", err)
			}
		}
	}
	return nil
}

// GetOrder returns one order from the live book.
func (s *TradingService) GetOrder(ctx context.Context, marketID string, orderID uint64) (domain.Order, error) {
	var out domain.Order
	err := s.registry.WithBook(marketID, func(b *book.OrderBook) error {
		o, ok := b.Order(orderID)
		if !ok {
			return domain.ErrOrderNotFound
		}
		out = o
		return nil
	})
	return out, err
}

// OpenOrders lists the open orders resting on a market's book.
func (s *TradingService) OpenOrders(ctx context.Context, marketID string) ([]domain.Order, error) {
	var out []domain.Order
	err := s.registry.WithBook(marketID, func(b *book.OrderBook) error {
		out = b.OpenOrders()
		return nil
	})
	return out, err
}

// Depth returns the aggregated book for one outcome and refreshes the cache.
func (s *TradingService) Depth(ctx context.Context, marketID string, outcome domain.Outcome) (domain.DepthSnapshot, error) {
	var snap domain.DepthSnapshot
	now := time.Now().UTC()
	err := s.registry.WithBook(marketID, func(b *book.OrderBook) error {
		snap = b.Depth(outcome, now)
		return nil
	})
	if err != nil {
		return domain.DepthSnapshot{}, err
	}
	if s.depth != nil {
		if cacheErr := s.depth.SetDepth(ctx, snap); cacheErr != nil {
			s.logger.WarnContext(ctx, "depth cache refresh failed",
				slog.String("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return snap, nil
}

// BookStats returns the per-market counters.
func (s *TradingService) BookStats(ctx context.Context, marketID string) (domain.BookStats, error) {
	var out domain.BookStats
	err := s.registry.WithBook(marketID, func(b *book.OrderBook) error {
		out = b.Stats()
		return nil
	})
	return out, err
}

// CountUserOrders returns the maker's open order count on one market.
func (s *TradingService) CountUserOrders(ctx context.Context, marketID, maker string) (int, error) {
	var n int
	err := s.registry.WithBook(marketID, func(b *book.OrderBook) error {
		n = b.CountUserOrders(maker)
		return nil
	})
	return n, err
}

// ListTrades returns persisted fills for a market.
func (s *TradingService) ListTrades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.trades.ListByMarket(ctx, marketID, opts)
}

// RehydrateBooks rebuilds the in-memory books from the order and stats
// stores after a restart. Markets in any status rehydrate: resting orders on
// a closed market must stay cancellable.
func (s *TradingService) RehydrateBooks(ctx context.Context, marketIDs []string) error {
	for _, marketID := range marketIDs {
		open, err := s.orders.ListOpen(ctx, marketID)
		if err != nil {
			return fmt.Errorf("trading_service: rehydrate %s: %w", marketID, err)
		}
		stats, statsErr := s.stats.GetByMarket(ctx, marketID)

		err = s.registry.WithBook(marketID, func(b *book.OrderBook) error {
			for _, o := range open {
				if err := b.Restore(o); err != nil {
					return fmt.Errorf("order %d: %w", o.ID, err)
				}
			}
			if statsErr == nil {
				b.RestoreStats(stats)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("trading_service: rehydrate %s: %w", marketID, err)
		}
		s.logger.InfoContext(ctx, "book rehydrated",
			slog.String("market_id", marketID),
			slog.Int("open_orders", len(open)),
		)
	}
	return nil
}

func (s *TradingService) gateMarket(ctx context.Context, marketID string) error {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("trading_service: market %s: %w", marketID, err)
	}
	if !m.Tradable() {
		return domain.ErrMarketClosed
	}
	return nil
}

func (s *TradingService) refreshDepth(ctx context.Context, b *book.OrderBook, outcome domain.Outcome, now time.Time) {
	if s.depth == nil {
		return
	}
	if err := s.depth.SetDepth(ctx, b.Depth(outcome, now)); err != nil {
		s.logger.WarnContext(ctx, "depth cache refresh failed",
			slog.String("market_id", b.MarketID()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradingService) persistStats(ctx context.Context, marketID string) {
	if s.stats == nil {
		return
	}
	var stats domain.BookStats
	_ = s.registry.WithBook(marketID, func(b *book.OrderBook) error {
		stats = b.Stats()
		return nil
	})
	if err := s.stats.Upsert(ctx, stats); err != nil {
		s.logger.WarnContext(ctx, "persist book stats failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradingService) publish(ctx context.Context, channel string, event map[string]any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradingService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
