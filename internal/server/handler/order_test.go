package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/predengine/internal/domain"
	"github.com/outcomelab/predengine/internal/service"
)

type fakeTrading struct {
	placeErr  error
	cancelErr error
	matchErr  error
	lastPlace service.PlaceOrderRequest
	cancelled []uint64
}

func (f *fakeTrading) PlaceOrder(_ context.Context, req service.PlaceOrderRequest) (domain.Order, error) {
	f.lastPlace = req
	if f.placeErr != nil {
		return domain.Order{}, f.placeErr
	}
	return domain.Order{
		ID:       1,
		MarketID: req.MarketID,
		Maker:    req.Maker,
		Side:     req.Side,
		Outcome:  req.Outcome,
		PriceBps: req.PriceBps,
		Amount:   req.Amount,
		Status:   domain.OrderStatusOpen,
	}, nil
}

func (f *fakeTrading) CancelOrder(_ context.Context, marketID string, orderID uint64, caller string) (domain.Order, error) {
	if f.cancelErr != nil {
		return domain.Order{}, f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return domain.Order{ID: orderID, MarketID: marketID, Maker: caller, Status: domain.OrderStatusCancelled}, nil
}

func (f *fakeTrading) MatchOrders(_ context.Context, marketID string, buyID, sellID uint64) (domain.Trade, error) {
	if f.matchErr != nil {
		return domain.Trade{}, f.matchErr
	}
	return domain.Trade{ID: "t1", MarketID: marketID, BuyOrderID: buyID, SellOrderID: sellID}, nil
}

func (f *fakeTrading) GetOrder(_ context.Context, marketID string, orderID uint64) (domain.Order, error) {
	return domain.Order{ID: orderID, MarketID: marketID}, nil
}

func (f *fakeTrading) OpenOrders(_ context.Context, marketID string) ([]domain.Order, error) {
	return []domain.Order{{ID: 1, MarketID: marketID}}, nil
}

func orderMux(f *fakeTrading) *http.ServeMux {
	h := NewOrderHandler(f)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/markets/{market}/orders", h.ListOrders)
	mux.HandleFunc("DELETE /api/markets/{market}/orders/{id}", h.CancelOrder)
	mux.HandleFunc("POST /api/markets/{market}/match", h.MatchOrders)
	return mux
}

func TestPlaceOrderCreated(t *testing.T) {
	f := &fakeTrading{}
	mux := orderMux(f)

	body := `{"market_id":"m1","side":"buy","outcome":"yes","price_bps":6000,"amount":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	req.Header.Set("X-Account-ID", "alice")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", f.lastPlace.Maker)
	assert.Equal(t, domain.SideBuy, f.lastPlace.Side)
	assert.Equal(t, int64(6000), f.lastPlace.PriceBps)

	var out domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, uint64(1), out.ID)
}

func TestPlaceOrderMissingIdentity(t *testing.T) {
	mux := orderMux(&fakeTrading{})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"market_id":"m1","side":"buy","outcome":"yes"}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"market closed", domain.ErrMarketClosed, http.StatusUnprocessableEntity},
		{"bad price", domain.ErrInvalidPrice, http.StatusBadRequest},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"unknown market", domain.ErrNotFound, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := orderMux(&fakeTrading{placeErr: tc.err})

			body := `{"market_id":"m1","side":"buy","outcome":"yes","price_bps":6000,"amount":100}`
			req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
			req.Header.Set("X-Account-ID", "alice")
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCancelOrderPathParams(t *testing.T) {
	f := &fakeTrading{}
	mux := orderMux(f)

	req := httptest.NewRequest(http.MethodDelete, "/api/markets/m1/orders/42", nil)
	req.Header.Set("X-Account-ID", "alice")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint64{42}, f.cancelled)
}

func TestCancelOrderWrongCaller(t *testing.T) {
	mux := orderMux(&fakeTrading{cancelErr: domain.ErrNotOrderMaker})

	req := httptest.NewRequest(http.MethodDelete, "/api/markets/m1/orders/42", nil)
	req.Header.Set("X-Account-ID", "mallory")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMatchOrdersNotCrossing(t *testing.T) {
	mux := orderMux(&fakeTrading{matchErr: domain.ErrNoMatchingOrders})

	req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/match",
		strings.NewReader(`{"buy_order_id":1,"sell_order_id":2}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrders(t *testing.T) {
	mux := orderMux(&fakeTrading{})

	req := httptest.NewRequest(http.MethodGet, "/api/markets/m1/orders", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Count)
}
