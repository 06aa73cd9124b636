package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/predengine/internal/domain"
)

const testMinOrder = 100

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()
	return New("mkt-1", testMinOrder)
}

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestPlaceOrderValidation(t *testing.T) {
	tests := []struct {
		name     string
		priceBps int64
		amount   uint64
		wantErr  error
	}{
		{"price zero", 0, 1_000, domain.ErrInvalidPrice},
		{"price at scale", 10000, 1_000, domain.ErrInvalidPrice},
		{"price negative", -100, 1_000, domain.ErrInvalidPrice},
		{"amount below minimum", 5000, testMinOrder - 1, domain.ErrAmountTooSmall},
		{"lowest valid price", 1, 1_000, nil},
		{"highest valid price", 9999, 1_000, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBook(t)
			id, err := b.PlaceOrder("alice", domain.SideBuy, domain.OutcomeYes, tt.priceBps, tt.amount, ts(0))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, b.Stats().OpenOrders)
				return
			}
			require.NoError(t, err)
			o, ok := b.Order(id)
			require.True(t, ok)
			assert.Equal(t, domain.OrderStatusOpen, o.Status)
			assert.Zero(t, o.Filled)
		})
	}
}

func TestPlaceOrderAllocatesMonotonicIDs(t *testing.T) {
	b := newTestBook(t)

	var prev uint64
	for i := 0; i < 5; i++ {
		id, err := b.PlaceOrder("alice", domain.SideBuy, domain.OutcomeYes, 5000, 1_000, ts(i))
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, uint64(5), b.Stats().OpenOrders)
	assert.Equal(t, uint64(6), b.Stats().NextOrderID)
}

func TestCancelOrder(t *testing.T) {
	b := newTestBook(t)
	id, err := b.PlaceOrder("alice", domain.SideSell, domain.OutcomeNo, 4200, 2_000, ts(0))
	require.NoError(t, err)

	_, err = b.CancelOrder(999, "alice", ts(1))
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = b.CancelOrder(id, "mallory", ts(1))
	assert.ErrorIs(t, err, domain.ErrNotOrderMaker)

	o, err := b.CancelOrder(id, "alice", ts(1))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, o.Status)
	assert.Zero(t, b.Stats().OpenOrders)

	// Cancelling twice fails: cancelled orders are terminal.
	_, err = b.CancelOrder(id, "alice", ts(2))
	assert.ErrorIs(t, err, domain.ErrOrderNotOpen)

	_, ok := b.BestSell(domain.OutcomeNo)
	assert.False(t, ok)
}

func TestMatchOrdersPartialAndFullFill(t *testing.T) {
	b := newTestBook(t)
	buyID, err := b.PlaceOrder("buyer", domain.SideBuy, domain.OutcomeYes, 6500, 10_000, ts(0))
	require.NoError(t, err)
	sellID, err := b.PlaceOrder("seller", domain.SideSell, domain.OutcomeYes, 6400, 4_000, ts(1))
	require.NoError(t, err)

	res, err := b.MatchOrders(buyID, sellID, ts(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(4_000), res.Amount)
	// The buy rested first, so the trade executes at the buy price.
	assert.Equal(t, int64(6500), res.PriceBps)

	assert.Equal(t, domain.OrderStatusPartiallyFilled, res.Buy.Status)
	assert.Equal(t, uint64(4_000), res.Buy.Filled)
	assert.Equal(t, domain.OrderStatusFilled, res.Sell.Status)
	assert.Equal(t, uint64(4_000), res.Sell.Filled)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.OpenOrders) // only the buy remains
	assert.Equal(t, uint64(4_000), stats.TotalVolume)
	assert.Equal(t, uint64(1), stats.TradeCount)

	// The filled sell is gone from the index, the partial buy still rests.
	_, ok := b.BestSell(domain.OutcomeYes)
	assert.False(t, ok)
	best, ok := b.BestBuy(domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, uint64(6_000), best.Remaining())
}

func TestMatchOrdersRejections(t *testing.T) {
	b := newTestBook(t)
	buyYes, _ := b.PlaceOrder("a", domain.SideBuy, domain.OutcomeYes, 6000, 1_000, ts(0))
	sellYesHigh, _ := b.PlaceOrder("b", domain.SideSell, domain.OutcomeYes, 6100, 1_000, ts(1))
	sellNo, _ := b.PlaceOrder("c", domain.SideSell, domain.OutcomeNo, 5000, 1_000, ts(2))
	buyYes2, _ := b.PlaceOrder("d", domain.SideBuy, domain.OutcomeYes, 6200, 1_000, ts(3))

	t.Run("missing order", func(t *testing.T) {
		_, err := b.MatchOrders(buyYes, 999, ts(4))
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("crossing condition fails", func(t *testing.T) {
		_, err := b.MatchOrders(buyYes, sellYesHigh, ts(4))
		assert.ErrorIs(t, err, domain.ErrNoMatchingOrders)
	})

	t.Run("outcome mismatch", func(t *testing.T) {
		_, err := b.MatchOrders(buyYes, sellNo, ts(4))
		assert.ErrorIs(t, err, domain.ErrNoMatchingOrders)
	})

	t.Run("sides swapped", func(t *testing.T) {
		_, err := b.MatchOrders(sellYesHigh, buyYes, ts(4))
		assert.ErrorIs(t, err, domain.ErrNoMatchingOrders)
	})

	t.Run("two buys", func(t *testing.T) {
		_, err := b.MatchOrders(buyYes, buyYes2, ts(4))
		assert.ErrorIs(t, err, domain.ErrNoMatchingOrders)
	})

	t.Run("cancelled order", func(t *testing.T) {
		_, err := b.CancelOrder(sellYesHigh, "b", ts(4))
		require.NoError(t, err)
		_, err = b.MatchOrders(buyYes2, sellYesHigh, ts(5))
		assert.ErrorIs(t, err, domain.ErrOrderNotOpen)
	})

	// No rejected match mutated anything.
	assert.Zero(t, b.Stats().TotalVolume)
	assert.Zero(t, b.Stats().TradeCount)
}

// Reproduces the canonical walk: a buy for 100 YES at 6500 against resting
// sells of 50 @ 6400 and 30 @ 6500 consumes the cheaper sell first, then the
// second, and leaves 20 resting on the buy.
func TestPriceTimePriorityWalk(t *testing.T) {
	b := New("mkt-1", 1)

	buyID, err := b.PlaceOrder("taker", domain.SideBuy, domain.OutcomeYes, 6500, 100, ts(0))
	require.NoError(t, err)
	sellCheap, err := b.PlaceOrder("m1", domain.SideSell, domain.OutcomeYes, 6400, 50, ts(1))
	require.NoError(t, err)
	sellAt, err := b.PlaceOrder("m2", domain.SideSell, domain.OutcomeYes, 6500, 30, ts(2))
	require.NoError(t, err)

	best, ok := b.BestSell(domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, sellCheap, best.ID)

	res, err := b.MatchOrders(buyID, best.ID, ts(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(50), res.Amount)

	best, ok = b.BestSell(domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, sellAt, best.ID)

	res, err = b.MatchOrders(buyID, best.ID, ts(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(30), res.Amount)

	buy, ok := b.Order(buyID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, buy.Status)
	assert.Equal(t, uint64(80), buy.Filled)
	assert.Equal(t, uint64(20), buy.Remaining())

	stats := b.Stats()
	assert.Equal(t, uint64(80), stats.TotalVolume)
	assert.Equal(t, uint64(2), stats.TradeCount)
	assert.Equal(t, uint64(1), stats.OpenOrders)
}

func TestTieBreakByPlacementOrder(t *testing.T) {
	b := newTestBook(t)

	first, _ := b.PlaceOrder("m1", domain.SideSell, domain.OutcomeYes, 5500, 1_000, ts(0))
	_, _ = b.PlaceOrder("m2", domain.SideSell, domain.OutcomeYes, 5500, 1_000, ts(1))
	late, _ := b.PlaceOrder("m3", domain.SideBuy, domain.OutcomeYes, 7000, 1_000, ts(2))
	early, _ := b.PlaceOrder("m4", domain.SideBuy, domain.OutcomeYes, 7000, 1_000, ts(3))
	_ = late
	_ = early

	best, ok := b.BestSell(domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, first, best.ID, "equal prices resolve to the earliest placed order")

	bestBuy, ok := b.BestBuy(domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, late, bestBuy.ID)
}

func TestBidAskSpreadAndMid(t *testing.T) {
	b := newTestBook(t)

	_, _, bidOK, askOK := b.BidAsk(domain.OutcomeYes)
	assert.False(t, bidOK)
	assert.False(t, askOK)
	_, ok := b.Spread(domain.OutcomeYes)
	assert.False(t, ok)
	_, ok = b.MidPrice(domain.OutcomeYes)
	assert.False(t, ok)

	_, _ = b.PlaceOrder("a", domain.SideBuy, domain.OutcomeYes, 6300, 1_000, ts(0))
	_, _ = b.PlaceOrder("b", domain.SideBuy, domain.OutcomeYes, 6400, 1_000, ts(1))
	_, _ = b.PlaceOrder("c", domain.SideSell, domain.OutcomeYes, 6600, 1_000, ts(2))
	_, _ = b.PlaceOrder("d", domain.SideSell, domain.OutcomeYes, 6700, 1_000, ts(3))

	bid, ask, bidOK, askOK := b.BidAsk(domain.OutcomeYes)
	require.True(t, bidOK)
	require.True(t, askOK)
	assert.Equal(t, int64(6400), bid)
	assert.Equal(t, int64(6600), ask)

	spread, ok := b.Spread(domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, int64(200), spread)

	mid, ok := b.MidPrice(domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, int64(6500), mid)
}

func TestDepthAggregation(t *testing.T) {
	b := newTestBook(t)

	_, _ = b.PlaceOrder("a", domain.SideBuy, domain.OutcomeYes, 6000, 1_000, ts(0))
	_, _ = b.PlaceOrder("b", domain.SideBuy, domain.OutcomeYes, 6000, 2_000, ts(1))
	_, _ = b.PlaceOrder("c", domain.SideBuy, domain.OutcomeYes, 5900, 3_000, ts(2))
	sellID, _ := b.PlaceOrder("d", domain.SideSell, domain.OutcomeYes, 6200, 4_000, ts(3))
	_, _ = b.PlaceOrder("e", domain.SideSell, domain.OutcomeNo, 4000, 9_000, ts(4))

	snap := b.Depth(domain.OutcomeYes, ts(5))
	require.Len(t, snap.Bids, 2)
	assert.Equal(t, int64(6000), snap.Bids[0].PriceBps)
	assert.Equal(t, uint64(3_000), snap.Bids[0].Amount)
	assert.Equal(t, 2, snap.Bids[0].Orders)
	assert.Equal(t, int64(5900), snap.Bids[1].PriceBps)
	assert.Equal(t, uint64(6_000), snap.BidAmount)

	require.Len(t, snap.Asks, 1)
	assert.Equal(t, uint64(4_000), snap.AskAmount)
	assert.Equal(t, int64(6000), snap.BestBidBps)
	assert.Equal(t, int64(6200), snap.BestAskBps)

	// Depth scans only open orders: cancel the sell and the ask side empties.
	_, err := b.CancelOrder(sellID, "d", ts(6))
	require.NoError(t, err)
	snap = b.Depth(domain.OutcomeYes, ts(7))
	assert.Empty(t, snap.Asks)
	assert.Zero(t, snap.AskAmount)
}

func TestCountUserOrders(t *testing.T) {
	b := newTestBook(t)

	a1, _ := b.PlaceOrder("alice", domain.SideBuy, domain.OutcomeYes, 5000, 1_000, ts(0))
	_, _ = b.PlaceOrder("alice", domain.SideSell, domain.OutcomeNo, 5000, 1_000, ts(1))
	_, _ = b.PlaceOrder("bob", domain.SideBuy, domain.OutcomeYes, 5000, 1_000, ts(2))

	assert.Equal(t, 2, b.CountUserOrders("alice"))
	assert.Equal(t, 1, b.CountUserOrders("bob"))
	assert.Zero(t, b.CountUserOrders("carol"))

	_, err := b.CancelOrder(a1, "alice", ts(3))
	require.NoError(t, err)
	assert.Equal(t, 1, b.CountUserOrders("alice"))
}

func TestRestoreRebuildsBook(t *testing.T) {
	b := newTestBook(t)

	err := b.Restore(domain.Order{
		ID: 7, MarketID: "mkt-1", Maker: "alice",
		Side: domain.SideSell, Outcome: domain.OutcomeYes,
		PriceBps: 5100, Amount: 2_000, Filled: 500,
		Status: domain.OrderStatusPartiallyFilled, CreatedAt: ts(0),
	})
	require.NoError(t, err)

	err = b.Restore(domain.Order{
		ID: 3, MarketID: "mkt-1", Maker: "bob",
		Side: domain.SideSell, Outcome: domain.OutcomeYes,
		PriceBps: 5100, Amount: 1_000,
		Status: domain.OrderStatusOpen, CreatedAt: ts(1),
	})
	require.NoError(t, err)

	// Closed orders restore without re-entering the index.
	err = b.Restore(domain.Order{
		ID: 5, MarketID: "mkt-1", Maker: "carol",
		Side: domain.SideBuy, Outcome: domain.OutcomeYes,
		PriceBps: 5200, Amount: 1_000, Filled: 1_000,
		Status: domain.OrderStatusFilled, CreatedAt: ts(2),
	})
	require.NoError(t, err)

	err = b.Restore(domain.Order{ID: 7})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	assert.Equal(t, uint64(2), b.Stats().OpenOrders)
	assert.Equal(t, uint64(8), b.Stats().NextOrderID)

	// Same price: the lower id (earlier placement) is best.
	best, ok := b.BestSell(domain.OutcomeYes)
	require.True(t, ok)
	assert.Equal(t, uint64(3), best.ID)

	// New placements continue past the restored ids.
	id, err := b.PlaceOrder("dave", domain.SideBuy, domain.OutcomeYes, 5100, 1_000, ts(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), id)
}

func TestFilledInvariantHolds(t *testing.T) {
	b := New("mkt-1", 1)
	buyID, _ := b.PlaceOrder("a", domain.SideBuy, domain.OutcomeYes, 5000, 300, ts(0))

	for i := 0; i < 3; i++ {
		sellID, err := b.PlaceOrder("b", domain.SideSell, domain.OutcomeYes, 5000, 100, ts(i+1))
		require.NoError(t, err)
		_, err = b.MatchOrders(buyID, sellID, ts(i+10))
		require.NoError(t, err)

		o, _ := b.Order(buyID)
		assert.LessOrEqual(t, o.Filled, o.Amount)
		if o.Filled == o.Amount {
			assert.Equal(t, domain.OrderStatusFilled, o.Status)
		} else {
			assert.Equal(t, domain.OrderStatusPartiallyFilled, o.Status)
		}
	}

	buy, _ := b.Order(buyID)
	assert.Equal(t, domain.OrderStatusFilled, buy.Status)
	// A filled order can be neither matched nor cancelled.
	extraSell, _ := b.PlaceOrder("b", domain.SideSell, domain.OutcomeYes, 5000, 100, ts(20))
	_, err := b.MatchOrders(buyID, extraSell, ts(21))
	assert.ErrorIs(t, err, domain.ErrOrderNotOpen)
	_, err = b.CancelOrder(buyID, "a", ts(22))
	assert.ErrorIs(t, err, domain.ErrOrderNotOpen)
}
