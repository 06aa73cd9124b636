package handler

import (
	"context"
	"net/http"

	"github.com/outcomelab/predengine/internal/domain"
)

// HistoryReader serves executed trade and swap history.
type HistoryReader interface {
	ListTrades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// SwapHistoryReader serves executed swap history.
type SwapHistoryReader interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Swap, error)
}

// TradeHandler exposes execution history endpoints.
type TradeHandler struct {
	trades HistoryReader
	swaps  SwapHistoryReader
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades HistoryReader, swaps SwapHistoryReader) *TradeHandler {
	return &TradeHandler{trades: trades, swaps: swaps}
}

// ListTrades handles GET /api/markets/{market}/trades.
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")
	opts := parseListOpts(r)

	trades, err := h.trades.ListTrades(r.Context(), marketID, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"trades":    trades,
		"count":     len(trades),
	})
}

// ListSwaps handles GET /api/markets/{market}/swaps.
func (h *TradeHandler) ListSwaps(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")
	opts := parseListOpts(r)

	swaps, err := h.swaps.ListByMarket(r.Context(), marketID, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"swaps":     swaps,
		"count":     len(swaps),
	})
}
