package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outcomelab/predengine/internal/domain"
	"github.com/outcomelab/predengine/internal/engine"
	"github.com/outcomelab/predengine/internal/notify"
	"github.com/outcomelab/predengine/internal/pipeline"
	"github.com/outcomelab/predengine/internal/server"
	"github.com/outcomelab/predengine/internal/server/handler"
	"github.com/outcomelab/predengine/internal/server/ws"
	"github.com/outcomelab/predengine/internal/service"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// ServeMode runs the API server, WebSocket hub, and notification watcher.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startServices(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// ArchiveMode runs a single archive pass and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 configuration")
	}
	arch := pipeline.NewArchiver(deps.Archiver, deps.LockManager, a.cfg.Archive.RetentionDays, a.logger)
	return arch.Run(ctx)
}

// FullMode runs everything ServeMode does plus the periodic archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	if err := a.startServices(ctx, g, deps); err != nil {
		return err
	}

	if deps.Archiver != nil && a.cfg.Archive.Enabled {
		arch := pipeline.NewArchiver(deps.Archiver, deps.LockManager, a.cfg.Archive.RetentionDays, a.logger)
		if cron := a.cfg.Archive.Cron; cron != "" {
			g.Go(func() error {
				return arch.RunCron(ctx, cron)
			})
		} else if interval := a.cfg.Archive.Interval.Duration; interval > 0 {
			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-ticker.C:
						if err := arch.Run(ctx); err != nil {
							a.logger.ErrorContext(ctx, "archive run failed",
								slog.String("error", err.Error()))
						}
					}
				}
			})
		}
	}

	return g.Wait()
}

// startServices builds the engine and services, rehydrates in-memory state
// from the stores, and launches the server, hub, and watcher goroutines.
func (a *App) startServices(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	registry := engine.NewRegistry(engine.Config{
		MinOrderAmount: a.cfg.Engine.MinOrderAmount,
		AMMFeeBps:      a.cfg.Engine.AMMFeeBps,
	})

	var limiter domain.RateLimiter
	if a.cfg.Engine.PlaceOrderRateLimit > 0 {
		limiter = deps.RateLimiter
	}

	tradingSvc := service.NewTradingService(service.TradingServiceDeps{
		Registry:       registry,
		Markets:        deps.MarketStore,
		Orders:         deps.OrderStore,
		Trades:         deps.TradeStore,
		Stats:          deps.BookStatsStore,
		Escrow:         deps.Escrow,
		Depth:          deps.DepthCache,
		Bus:            deps.SignalBus,
		Audit:          deps.AuditStore,
		Limiter:        limiter,
		OrderRateLimit: a.cfg.Engine.PlaceOrderRateLimit,
	}, a.logger)

	liquiditySvc := service.NewLiquidityService(service.LiquidityServiceDeps{
		Registry: registry,
		Markets:  deps.MarketStore,
		Pools:    deps.PoolStore,
		LPTokens: deps.LPTokenStore,
		Swaps:    deps.SwapStore,
		Escrow:   deps.Escrow,
		Prices:   deps.PriceCache,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
		Operator: a.cfg.Engine.Operator,
	}, a.logger)

	if err := a.rehydrate(ctx, deps, tradingSvc, liquiditySvc); err != nil {
		return fmt.Errorf("app: rehydrate: %w", err)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, notify.WatcherConfig{
		LargeTradeAmount: a.cfg.Notify.LargeTradeAmount,
		LargeSwapInput:   a.cfg.Notify.LargeSwapInput,
	}, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.New(server.Config{
			Port:        a.cfg.Server.Port,
			APIKey:      a.cfg.Server.APIKey,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		}, server.Handlers{
			Health: handler.NewHealthHandler(version, deps.HealthChecks),
			Orders: handler.NewOrderHandler(tradingSvc),
			Books:  handler.NewBookHandler(tradingSvc),
			Pools:  handler.NewPoolHandler(liquiditySvc),
			Trades: handler.NewTradeHandler(tradingSvc, deps.SwapStore),
			Events: handler.NewEventsHandler(deps.SignalBus),
			Hub:    hub,
		}, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	return nil
}

// rehydrate replays durable state into the in-memory engine: open orders
// into per-market books and pool snapshots into AMM aggregates. Book
// rehydration keys off the orders themselves, not market status, so resting
// orders on a market that stopped trading stay cancellable after a restart.
func (a *App) rehydrate(ctx context.Context, deps *Dependencies, trading *service.TradingService, liquidity *service.LiquidityService) error {
	ids, err := deps.OrderStore.MarketsWithOpen(ctx)
	if err != nil {
		return fmt.Errorf("list markets with open orders: %w", err)
	}

	if err := trading.RehydrateBooks(ctx, ids); err != nil {
		return fmt.Errorf("books: %w", err)
	}
	if err := liquidity.RehydratePools(ctx); err != nil {
		return fmt.Errorf("pools: %w", err)
	}

	a.logger.InfoContext(ctx, "engine state rehydrated",
		slog.Int("markets", len(ids)))
	return nil
}
