package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/predengine/internal/domain"
)

type recordedMsg struct {
	title   string
	message string
}

type fakeSender struct {
	mu   sync.Mutex
	name string
	sent []recordedMsg
	fail bool
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("boom")
	}
	f.sent = append(f.sent, recordedMsg{title: title, message: message})
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventLargeTrade}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventLargeSwap, "t", "m"))
	assert.Equal(t, 0, s.count())

	require.NoError(t, n.Notify(context.Background(), EventLargeTrade, "t", "m"))
	assert.Equal(t, 1, s.count())
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Equal(t, 1, s.count())
}

func TestDispatchCollectsSenderFailures(t *testing.T) {
	bad := &fakeSender{name: "bad", fail: true}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	// The failing sender does not block delivery to the healthy one.
	assert.Equal(t, 1, good.count())
}

// chanBus is a minimal in-memory signal bus for watcher tests.
type chanBus struct {
	channels map[string]chan []byte
}

func newChanBus() *chanBus {
	return &chanBus{channels: map[string]chan []byte{
		domain.ChannelTrades:    make(chan []byte, 8),
		domain.ChannelSwaps:     make(chan []byte, 8),
		domain.ChannelLiquidity: make(chan []byte, 8),
	}}
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.channels[channel] <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.channels[channel], nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error {
	return nil
}

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func waitForCount(t *testing.T, s *fakeSender, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sender received %d notifications, want %d", s.count(), want)
}

func TestWatcherLargeTradeThreshold(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, testLogger())
	bus := newChanBus()

	w := NewWatcher(bus, n, WatcherConfig{LargeTradeAmount: 1000}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	small, _ := json.Marshal(domain.Trade{MarketID: "m1", Amount: 999})
	big, _ := json.Marshal(domain.Trade{MarketID: "m1", Amount: 1000, Outcome: domain.OutcomeYes})
	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, small))
	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, big))

	waitForCount(t, s, 1)
	assert.Equal(t, "Large trade", s.sent[0].title)
}

func TestWatcherPoolDeactivation(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, testLogger())
	bus := newChanBus()

	w := NewWatcher(bus, n, WatcherConfig{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	added, _ := json.Marshal(map[string]any{"event": "liquidity_added", "market_id": "m1"})
	deactivated, _ := json.Marshal(map[string]any{"event": "pool_deactivated", "market_id": "m1"})
	require.NoError(t, bus.Publish(ctx, domain.ChannelLiquidity, added))
	require.NoError(t, bus.Publish(ctx, domain.ChannelLiquidity, deactivated))

	waitForCount(t, s, 1)
	assert.Equal(t, "Pool deactivated", s.sent[0].title)
	assert.Contains(t, s.sent[0].message, "m1")
}
