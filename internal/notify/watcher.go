package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/outcomelab/predengine/internal/domain"
)

// WatcherConfig sets the alert thresholds. A threshold of zero disables that
// alert.
type WatcherConfig struct {
	// LargeTradeAmount alerts when a fill's token amount meets or exceeds it.
	LargeTradeAmount uint64
	// LargeSwapInput alerts when a swap's input amount meets or exceeds it.
	LargeSwapInput uint64
}

// Watcher listens on the signal bus and turns notable engine events into
// operator notifications.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	cfg      WatcherConfig
	logger   *slog.Logger
}

// NewWatcher creates a Watcher.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, cfg WatcherConfig, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run consumes the trades, swaps, and liquidity channels until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	trades, err := w.bus.Subscribe(ctx, domain.ChannelTrades)
	if err != nil {
		return fmt.Errorf("notify: subscribe trades: %w", err)
	}
	swaps, err := w.bus.Subscribe(ctx, domain.ChannelSwaps)
	if err != nil {
		return fmt.Errorf("notify: subscribe swaps: %w", err)
	}
	liquidity, err := w.bus.Subscribe(ctx, domain.ChannelLiquidity)
	if err != nil {
		return fmt.Errorf("notify: subscribe liquidity: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-trades:
			if !ok {
				return nil
			}
			w.handleTrade(ctx, payload)
		case payload, ok := <-swaps:
			if !ok {
				return nil
			}
			w.handleSwap(ctx, payload)
		case payload, ok := <-liquidity:
			if !ok {
				return nil
			}
			w.handleLiquidity(ctx, payload)
		}
	}
}

func (w *Watcher) handleTrade(ctx context.Context, payload []byte) {
	if w.cfg.LargeTradeAmount == 0 {
		return
	}

	var t domain.Trade
	if err := json.Unmarshal(payload, &t); err != nil {
		w.logger.WarnContext(ctx, "bad trade payload", slog.String("error", err.Error()))
		return
	}
	if t.Amount < w.cfg.LargeTradeAmount {
		return
	}

	title := "Large trade"
	msg := fmt.Sprintf("market %s: %d %s @ %d bps (buy #%d / sell #%d)",
		t.MarketID, t.Amount, t.Outcome, t.PriceBps, t.BuyOrderID, t.SellOrderID)
	if err := w.notifier.Notify(ctx, EventLargeTrade, title, msg); err != nil {
		w.logger.WarnContext(ctx, "trade alert failed", slog.String("error", err.Error()))
	}
}

func (w *Watcher) handleSwap(ctx context.Context, payload []byte) {
	if w.cfg.LargeSwapInput == 0 {
		return
	}

	var s domain.Swap
	if err := json.Unmarshal(payload, &s); err != nil {
		w.logger.WarnContext(ctx, "bad swap payload", slog.String("error", err.Error()))
		return
	}
	if s.InputAmount < w.cfg.LargeSwapInput {
		return
	}

	title := "Large swap"
	msg := fmt.Sprintf("market %s: %s %d in, %d out (fee %d)",
		s.MarketID, s.Direction, s.InputAmount, s.OutputAmount, s.FeeAmount)
	if err := w.notifier.Notify(ctx, EventLargeSwap, title, msg); err != nil {
		w.logger.WarnContext(ctx, "swap alert failed", slog.String("error", err.Error()))
	}
}

func (w *Watcher) handleLiquidity(ctx context.Context, payload []byte) {
	var event struct {
		Event    string `json:"event"`
		MarketID string `json:"market_id"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		w.logger.WarnContext(ctx, "bad liquidity payload", slog.String("error", err.Error()))
		return
	}
	if event.Event != "pool_deactivated" {
		return
	}

	title := "Pool deactivated"
	msg := fmt.Sprintf("market %s: pool is no longer accepting liquidity or swaps", event.MarketID)
	if err := w.notifier.Notify(ctx, EventPoolDeactivated, title, msg); err != nil {
		w.logger.WarnContext(ctx, "liquidity alert failed", slog.String("error", err.Error()))
	}
}
