package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/outcomelab/predengine/internal/domain"
)

// LiquidityService is the slice of the liquidity layer the pool endpoints use.
type LiquidityService interface {
	CreatePool(ctx context.Context, marketID string) (domain.Pool, error)
	GetPool(ctx context.Context, marketID string) (domain.Pool, error)
	AddLiquidity(ctx context.Context, marketID, provider string, yesIn, noIn uint64) (domain.LPToken, error)
	RemoveLiquidity(ctx context.Context, marketID, provider, tokenID string, amount uint64) (uint64, uint64, error)
	Swap(ctx context.Context, marketID, trader string, direction domain.SwapDirection, input, minOutput uint64) (domain.Swap, error)
	Quote(ctx context.Context, marketID string, direction domain.SwapDirection, input uint64) (domain.SwapQuote, error)
	Prices(ctx context.Context, marketID string) (domain.PoolPrices, error)
	ListProviderTokens(ctx context.Context, provider string) ([]domain.LPToken, error)
	DeactivatePool(ctx context.Context, marketID, caller string) error
}

// PoolHandler exposes the AMM surface: pool lifecycle, liquidity, and swaps.
type PoolHandler struct {
	liquidity LiquidityService
}

// NewPoolHandler creates a PoolHandler.
func NewPoolHandler(liquidity LiquidityService) *PoolHandler {
	return &PoolHandler{liquidity: liquidity}
}

// CreatePool handles POST /api/markets/{market}/pool.
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")

	pool, err := h.liquidity.CreatePool(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pool)
}

// GetPool handles GET /api/markets/{market}/pool.
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")

	pool, err := h.liquidity.GetPool(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pool)
}

// DeactivatePool handles DELETE /api/markets/{market}/pool.
func (h *PoolHandler) DeactivatePool(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account-ID header")
		return
	}

	marketID := pathParam(r, "market")

	if err := h.liquidity.DeactivatePool(r.Context(), marketID, caller); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": marketID,
		"status":    "deactivated",
	})
}

type addLiquidityRequest struct {
	YesAmount uint64 `json:"yes_amount"`
	NoAmount  uint64 `json:"no_amount"`
}

// AddLiquidity handles POST /api/markets/{market}/pool/liquidity.
func (h *PoolHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	provider := callerIdentity(r)
	if provider == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account-ID header")
		return
	}

	marketID := pathParam(r, "market")

	var req addLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	token, err := h.liquidity.AddLiquidity(r.Context(), marketID, provider, req.YesAmount, req.NoAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

type removeLiquidityRequest struct {
	TokenID string `json:"token_id"`
	// Amount of LP tokens to burn; 0 burns the whole receipt.
	Amount uint64 `json:"amount"`
}

// RemoveLiquidity handles DELETE /api/markets/{market}/pool/liquidity.
func (h *PoolHandler) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	provider := callerIdentity(r)
	if provider == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account-ID header")
		return
	}

	marketID := pathParam(r, "market")

	var req removeLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TokenID == "" {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}

	yesOut, noOut, err := h.liquidity.RemoveLiquidity(r.Context(), marketID, provider, req.TokenID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":  marketID,
		"token_id":   req.TokenID,
		"yes_amount": yesOut,
		"no_amount":  noOut,
	})
}

type swapRequest struct {
	Direction string `json:"direction"`
	Amount    uint64 `json:"amount"`
	MinOutput uint64 `json:"min_output"`
}

// Swap handles POST /api/markets/{market}/pool/swap.
func (h *PoolHandler) Swap(w http.ResponseWriter, r *http.Request) {
	trader := callerIdentity(r)
	if trader == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account-ID header")
		return
	}

	marketID := pathParam(r, "market")

	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	direction, ok := parseDirection(req.Direction)
	if !ok {
		writeError(w, http.StatusBadRequest, "direction must be yes_for_no or no_for_yes")
		return
	}

	swap, err := h.liquidity.Swap(r.Context(), marketID, trader, direction, req.Amount, req.MinOutput)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, swap)
}

// Quote handles GET /api/markets/{market}/pool/quote.
func (h *PoolHandler) Quote(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")
	q := r.URL.Query()

	direction, ok := parseDirection(q.Get("direction"))
	if !ok {
		writeError(w, http.StatusBadRequest, "direction must be yes_for_no or no_for_yes")
		return
	}

	amount, err := parseUint(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	quote, err := h.liquidity.Quote(r.Context(), marketID, direction, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// Prices handles GET /api/markets/{market}/pool/prices.
func (h *PoolHandler) Prices(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")

	prices, err := h.liquidity.Prices(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prices)
}

// ProviderTokens handles GET /api/liquidity/tokens. It lists the caller's LP
// receipts across all markets.
func (h *PoolHandler) ProviderTokens(w http.ResponseWriter, r *http.Request) {
	provider := callerIdentity(r)
	if provider == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account-ID header")
		return
	}

	tokens, err := h.liquidity.ListProviderTokens(r.Context(), provider)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider": provider,
		"tokens":   tokens,
		"count":    len(tokens),
	})
}

func parseDirection(s string) (domain.SwapDirection, bool) {
	switch domain.SwapDirection(s) {
	case domain.SwapYesForNo:
		return domain.SwapYesForNo, true
	case domain.SwapNoForYes:
		return domain.SwapNoForYes, true
	default:
		return "", false
	}
}
