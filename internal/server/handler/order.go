package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/outcomelab/predengine/internal/domain"
	"github.com/outcomelab/predengine/internal/service"
)

// TradingService is the slice of the trading layer the order endpoints use.
type TradingService interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, marketID string, orderID uint64, caller string) (domain.Order, error)
	MatchOrders(ctx context.Context, marketID string, buyID, sellID uint64) (domain.Trade, error)
	GetOrder(ctx context.Context, marketID string, orderID uint64) (domain.Order, error)
	OpenOrders(ctx context.Context, marketID string) ([]domain.Order, error)
}

// OrderHandler exposes order placement, cancellation, and keeper matching.
type OrderHandler struct {
	trading TradingService
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(trading TradingService) *OrderHandler {
	return &OrderHandler{trading: trading}
}

type placeOrderRequest struct {
	MarketID string `json:"market_id"`
	Side     string `json:"side"`
	Outcome  string `json:"outcome"`
	PriceBps int64  `json:"price_bps"`
	Amount   uint64 `json:"amount"`
}

// PlaceOrder handles POST /api/orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	maker := callerIdentity(r)
	if maker == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account-ID header")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.MarketID == "" {
		writeError(w, http.StatusBadRequest, "market_id is required")
		return
	}

	side := domain.Side(req.Side)
	if side != domain.SideBuy && side != domain.SideSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	outcome := domain.Outcome(req.Outcome)
	if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}

	order, err := h.trading.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		MarketID: req.MarketID,
		Maker:    maker,
		Side:     side,
		Outcome:  outcome,
		PriceBps: req.PriceBps,
		Amount:   req.Amount,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// CancelOrder handles DELETE /api/markets/{market}/orders/{id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account-ID header")
		return
	}

	marketID := pathParam(r, "market")
	orderID, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.trading.CancelOrder(r.Context(), marketID, orderID, caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// GetOrder handles GET /api/markets/{market}/orders/{id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")
	orderID, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.trading.GetOrder(r.Context(), marketID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// ListOrders handles GET /api/markets/{market}/orders. It returns the open
// orders on the market's books.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")

	orders, err := h.trading.OpenOrders(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"orders":    orders,
		"count":     len(orders),
	})
}

type matchRequest struct {
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
}

// MatchOrders handles POST /api/markets/{market}/match. Matching is open to
// any caller; the engine verifies that the named orders actually cross.
func (h *OrderHandler) MatchOrders(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")

	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	trade, err := h.trading.MatchOrders(r.Context(), marketID, req.BuyOrderID, req.SellOrderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, trade)
}
