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
	"github.com/outcomelab/predengine/internal/engine/amm"
)

// poolAccount is the escrow identity holding a pool's reserves.
func poolAccount(marketID string) string {
	return "pool:" + marketID
}

// LiquidityService drives the AMM side of the engine: pool lifecycle,
// liquidity provision with LP-token accounting, and swaps.
type LiquidityService struct {
	registry *engine.Registry
	markets  domain.MarketStore
	pools    domain.PoolStore
	lpTokens domain.LPTokenStore
	swaps    domain.SwapStore
	escrow   domain.Escrow
	prices   domain.PriceCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	operator string
	logger   *slog.Logger
}

// LiquidityServiceDeps bundles the collaborators a LiquidityService needs.
// Prices, Bus, and Audit are optional.
type LiquidityServiceDeps struct {
	Registry *engine.Registry
	Markets  domain.MarketStore
	Pools    domain.PoolStore
	LPTokens domain.LPTokenStore
	Swaps    domain.SwapStore
	Escrow   domain.Escrow
	Prices   domain.PriceCache
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	// Operator is the identity allowed to run admin operations such as
	// pool deactivation. Capability checks are explicit per call rather
	// than ambient.
	Operator string
}

// NewLiquidityService creates a LiquidityService.
func NewLiquidityService(deps LiquidityServiceDeps, logger *slog.Logger) *LiquidityService {
	return &LiquidityService{
		registry: deps.Registry,
		markets:  deps.Markets,
		pools:    deps.Pools,
		lpTokens: deps.LPTokens,
		swaps:    deps.Swaps,
		escrow:   deps.Escrow,
		prices:   deps.Prices,
		bus:      deps.Bus,
		audit:    deps.Audit,
		operator: deps.Operator,
		logger:   logger.With(slog.String("component", "liquidity_service")),
	}
}

// CreatePool creates an empty active pool for an open market.
func (s *LiquidityService) CreatePool(ctx context.Context, marketID string) (domain.Pool, error) {
	if err := s.gateMarket(ctx, marketID); err != nil {
		return domain.Pool{}, err
	}

	now := time.Now().UTC()
	if err := s.registry.CreatePool(marketID, now); err != nil {
		return domain.Pool{}, err
	}

	snap, err := s.snapshotPool(ctx, marketID)
	if err != nil {
		return domain.Pool{}, err
	}
	if err := s.pools.Upsert(ctx, snap); err != nil {
		return domain.Pool{}, fmt.Errorf("liquidity_service: persist pool: %w", err)
	}
	s.auditLog(ctx, "pool_created", map[string]any{"market_id": marketID})
	return snap, nil
}

// AddLiquidity deposits both outcome tokens and mints an LP token receipt
// for the provider's share.
func (s *LiquidityService) AddLiquidity(ctx context.Context, marketID, provider string, yesIn, noIn uint64) (domain.LPToken, error) {
	if err := s.gateMarket(ctx, marketID); err != nil {
		return domain.LPToken{}, err
	}

	yesAsset := domain.OutcomeAsset(marketID, domain.OutcomeYes)
	noAsset := domain.OutcomeAsset(marketID, domain.OutcomeNo)
	if err := s.escrow.Reserve(ctx, provider, yesAsset, yesIn); err != nil {
		return domain.LPToken{}, fmt.Errorf("liquidity_service: reserve yes leg: %w", err)
	}
	if err := s.escrow.Reserve(ctx, provider, noAsset, noIn); err != nil {
		_ = s.escrow.Release(ctx, provider, yesAsset, yesIn)
		return domain.LPToken{}, fmt.Errorf("liquidity_service: reserve no leg: %w", err)
	}

	var minted uint64
	err := s.registry.WithPool(marketID, func(p *amm.Pool) error {
		m, err := p.AddLiquidity(yesIn, noIn)
		if err != nil {
			return err
		}
		minted = m
		return nil
	})
	if err != nil {
		_ = s.escrow.Release(ctx, provider, yesAsset, yesIn)
		_ = s.escrow.Release(ctx, provider, noAsset, noIn)
		return domain.LPToken{}, err
	}

	// The deposit now belongs to the pool's custody account.
	s.settleOrWarn(ctx, provider, poolAccount(marketID), yesAsset, yesIn)
	s.settleOrWarn(ctx, provider, poolAccount(marketID), noAsset, noIn)

	token := domain.LPToken{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		Provider:  provider,
		Amount:    minted,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.lpTokens.Create(ctx, token); err != nil {
		return domain.LPToken{}, fmt.Errorf("liquidity_service: persist lp token: %w", err)
	}
	if err := s.persistPool(ctx, marketID); err != nil {
		return domain.LPToken{}, err
	}

	s.publish(ctx, domain.ChannelLiquidity, map[string]any{
		"event":     "liquidity_added",
		"market_id": marketID,
		"provider":  provider,
		"yes_in":    yesIn,
		"no_in":     noIn,
		"lp_minted": minted,
	})
	s.auditLog(ctx, "liquidity_added", map[string]any{
		"market_id": marketID,
		"provider":  provider,
		"lp_minted": minted,
	})
	return token, nil
}

// RemoveLiquidity burns part or all of an LP token (amount of zero burns
// everything) and pays out the pro-rata reserve share. Removal works on
// deactivated pools: providers can always exit.
func (s *LiquidityService) RemoveLiquidity(ctx context.Context, marketID, provider, tokenID string, amount uint64) (yesOut, noOut uint64, err error) {
	token, err := s.lpTokens.GetByID(ctx, tokenID)
	if err != nil {
		return 0, 0, fmt.Errorf("liquidity_service: lp token %s: %w", tokenID, err)
	}
	if token.Provider != provider {
		return 0, 0, domain.ErrUnauthorized
	}
	if token.MarketID != marketID {
		return 0, 0, domain.ErrNotFound
	}
	if amount == 0 {
		amount = token.Amount
	}
	if amount > token.Amount {
		return 0, 0, domain.ErrInsufficientLiquidity
	}

	err = s.registry.WithPool(marketID, func(p *amm.Pool) error {
		y, n, err := p.RemoveLiquidity(amount)
		if err != nil {
			return err
		}
		yesOut, noOut = y, n
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	pool := poolAccount(marketID)
	yesAsset := domain.OutcomeAsset(marketID, domain.OutcomeYes)
	noAsset := domain.OutcomeAsset(marketID, domain.OutcomeNo)
	s.payoutOrWarn(ctx, pool, provider, yesAsset, yesOut)
	s.payoutOrWarn(ctx, pool, provider, noAsset, noOut)

	if amount == token.Amount {
		if err := s.lpTokens.Delete(ctx, token.ID); err != nil {
			return 0, 0, fmt.Errorf("liquidity_service: burn lp token: %w", err)
		}
	} else {
		token.Amount -= amount
		if err := s.lpTokens.Update(ctx, token); err != nil {
			return 0, 0, fmt.Errorf("liquidity_service: update lp token: %w", err)
		}
	}
	if err := s.persistPool(ctx, marketID); err != nil {
		return 0, 0, err
	}

	s.publish(ctx, domain.ChannelLiquidity, map[string]any{
		"event":     "liquidity_removed",
		"market_id": marketID,
		"provider":  provider,
		"lp_burned": amount,
		"yes_out":   yesOut,
		"no_out":    noOut,
	})
	s.auditLog(ctx, "liquidity_removed", map[string]any{
		"market_id": marketID,
		"provider":  provider,
		"lp_burned": amount,
	})
	return yesOut, noOut, nil
}

// Swap executes an AMM swap with slippage protection and settles both legs
// against the pool's custody account.
func (s *LiquidityService) Swap(ctx context.Context, marketID, trader string, direction domain.SwapDirection, input, minOutput uint64) (domain.Swap, error) {
	if err := s.gateMarket(ctx, marketID); err != nil {
		return domain.Swap{}, err
	}

	inAsset := domain.OutcomeAsset(marketID, domain.OutcomeYes)
	outAsset := domain.OutcomeAsset(marketID, domain.OutcomeNo)
	if direction == domain.SwapNoForYes {
		inAsset, outAsset = outAsset, inAsset
	}

	if err := s.escrow.Reserve(ctx, trader, inAsset, input); err != nil {
		return domain.Swap{}, fmt.Errorf("liquidity_service: reserve input: %w", err)
	}

	var quote domain.SwapQuote
	err := s.registry.WithPool(marketID, func(p *amm.Pool) error {
		var err error
		if direction == domain.SwapNoForYes {
			quote, err = p.SwapNoForYes(input, minOutput)
		} else {
			quote, err = p.SwapYesForNo(input, minOutput)
		}
		return err
	})
	if err != nil {
		_ = s.escrow.Release(ctx, trader, inAsset, input)
		return domain.Swap{}, err
	}

	pool := poolAccount(marketID)
	s.settleOrWarn(ctx, trader, pool, inAsset, input)
	s.payoutOrWarn(ctx, pool, trader, outAsset, quote.OutputAmount)

	swap := domain.Swap{
		ID:           uuid.New().String(),
		MarketID:     marketID,
		Trader:       trader,
		Direction:    direction,
		InputAmount:  input,
		OutputAmount: quote.OutputAmount,
		FeeAmount:    quote.FeeAmount,
		ExecutedAt:   time.Now().UTC(),
	}
	if err := s.swaps.Insert(ctx, swap); err != nil {
		return domain.Swap{}, fmt.Errorf("liquidity_service: persist swap: %w", err)
	}
	if err := s.persistPool(ctx, marketID); err != nil {
		return domain.Swap{}, err
	}
	s.refreshPrices(ctx, marketID)

	payload, _ := json.Marshal(swap)
	if s.bus != nil {
		if err := s.bus.Publish(ctx, domain.ChannelSwaps, payload); err != nil {
			s.logger.WarnContext(ctx, "publish swap failed",
				slog.String("swap_id", swap.ID),
				slog.String("error", err.Error()),
			)
		}
		// Durable copy for consumers that were offline during the swap.
		if err := s.bus.StreamAppend(ctx, "stream:"+domain.ChannelSwaps, payload); err != nil {
			s.logger.WarnContext(ctx, "stream append swap failed",
				slog.String("swap_id", swap.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return swap, nil
}

// Quote prices a prospective swap without mutating anything.
func (s *LiquidityService) Quote(ctx context.Context, marketID string, direction domain.SwapDirection, input uint64) (domain.SwapQuote, error) {
	var quote domain.SwapQuote
	err := s.registry.WithPool(marketID, func(p *amm.Pool) error {
		var err error
		if direction == domain.SwapNoForYes {
			quote, err = p.QuoteNoForYes(input)
		} else {
			quote, err = p.QuoteYesForNo(input)
		}
		return err
	})
	return quote, err
}

// GetPool returns the pool's current state.
func (s *LiquidityService) GetPool(ctx context.Context, marketID string) (domain.Pool, error) {
	return s.snapshotPool(ctx, marketID)
}

// Prices returns the pool's spot prices and refreshes the price cache.
func (s *LiquidityService) Prices(ctx context.Context, marketID string) (domain.PoolPrices, error) {
	var prices domain.PoolPrices
	now := time.Now().UTC()
	err := s.registry.WithPool(marketID, func(p *amm.Pool) error {
		prices = p.Prices(now)
		return nil
	})
	if err != nil {
		return domain.PoolPrices{}, err
	}
	if s.prices != nil {
		if cacheErr := s.prices.SetPrices(ctx, prices); cacheErr != nil {
			s.logger.WarnContext(ctx, "price cache refresh failed",
				slog.String("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return prices, nil
}

// ListProviderTokens lists a provider's LP receipts.
func (s *LiquidityService) ListProviderTokens(ctx context.Context, provider string) ([]domain.LPToken, error) {
	return s.lpTokens.ListByProvider(ctx, provider)
}

// DeactivatePool stops a pool once its market leaves trading. Only the
// configured operator may call it; reserves are untouched.
func (s *LiquidityService) DeactivatePool(ctx context.Context, marketID, caller string) error {
	if caller != s.operator {
		return domain.ErrUnauthorized
	}
	err := s.registry.WithPool(marketID, func(p *amm.Pool) error {
		p.Deactivate()
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.persistPool(ctx, marketID); err != nil {
		return err
	}
	s.publish(ctx, domain.ChannelLiquidity, map[string]any{
		"event":     "pool_deactivated",
		"market_id": marketID,
	})
	s.auditLog(ctx, "pool_deactivated", map[string]any{
		"market_id": marketID,
		"caller":    caller,
	})
	return nil
}

// RehydratePools reloads every persisted pool into the registry.
func (s *LiquidityService) RehydratePools(ctx context.Context) error {
	pools, err := s.pools.List(ctx)
	if err != nil {
		return fmt.Errorf("liquidity_service: list pools: %w", err)
	}
	for _, p := range pools {
		if err := s.registry.RestorePool(p); err != nil {
			return fmt.Errorf("liquidity_service: restore pool %s: %w", p.MarketID, err)
		}
	}
	s.logger.InfoContext(ctx, "pools rehydrated", slog.Int("count", len(pools)))
	return nil
}

func (s *LiquidityService) gateMarket(ctx context.Context, marketID string) error {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("liquidity_service: market %s: %w", marketID, err)
	}
	if !m.Tradable() {
		return domain.ErrMarketClosed
	}
	return nil
}

func (s *LiquidityService) snapshotPool(ctx context.Context, marketID string) (domain.Pool, error) {
	var snap domain.Pool
	now := time.Now().UTC()
	err := s.registry.WithPool(marketID, func(p *amm.Pool) error {
		snap = p.Snapshot(now)
		return nil
	})
	return snap, err
}

func (s *LiquidityService) persistPool(ctx context.Context, marketID string) error {
	snap, err := s.snapshotPool(ctx, marketID)
	if err != nil {
		return err
	}
	if err := s.pools.Upsert(ctx, snap); err != nil {
		return fmt.Errorf("liquidity_service: persist pool: %w", err)
	}
	return nil
}

// refreshPrices snapshots the pool's spot prices into the cache. Cache
// failures are non-fatal; readers fall back to the registry.
func (s *LiquidityService) refreshPrices(ctx context.Context, marketID string) {
	if s.prices == nil {
		return
	}
	var prices domain.PoolPrices
	now := time.Now().UTC()
	err := s.registry.WithPool(marketID, func(p *amm.Pool) error {
		prices = p.Prices(now)
		return nil
	})
	if err != nil {
		return
	}
	if err := s.prices.SetPrices(ctx, prices); err != nil {
		s.logger.WarnContext(ctx, "price cache refresh failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *LiquidityService) settleOrWarn(ctx context.Context, from, to string, asset domain.Asset, amount uint64) {
	if amount == 0 {
		return
	}
	if err := s.escrow.Settle(ctx, from, to, asset, amount); err != nil {
		s.logger.ErrorContext(ctx, "escrow settle failed",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
	}
}

// payoutOrWarn moves amount out of an account's available balance to a
// recipient by reserving and settling in one step.
func (s *LiquidityService) payoutOrWarn(ctx context.Context, from, to string, asset domain.Asset, amount uint64) {
	if amount == 0 {
		return
	}
	if err := s.escrow.Reserve(ctx, from, asset, amount); err != nil {
		s.logger.ErrorContext(ctx, "escrow payout reserve failed",
			slog.String("from", from),
			slog.String("error", err.Error()),
		)
		return
	}
	s.settleOrWarn(ctx, from, to, asset, amount)
}

func (s *LiquidityService) publish(ctx context.Context, channel string, event map[string]any) {
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

func (s *LiquidityService) auditLog(ctx context.Context, event string, detail map[string]any) {
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
