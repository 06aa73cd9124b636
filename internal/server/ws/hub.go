// Package ws implements the WebSocket hub that fans engine events out to
// connected clients. Events arrive over the signal bus; each client holds a
// per-connection channel subscription set and a buffered send queue.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/outcomelab/predengine/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Buffer size for the per-client send channel.
	sendBufferSize = 256
)

// defaultChannels are the bus channels every client is subscribed to on
// connect, until it sends its own subscribe message.
var defaultChannels = []string{
	domain.ChannelOrders,
	domain.ChannelTrades,
	domain.ChannelSwaps,
	domain.ChannelLiquidity,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks happen in the CORS middleware; the hub accepts
		// any upgrader that got this far.
		return true
	},
}

// Event is the envelope sent to WebSocket clients.
type Event struct {
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts bus events to them.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	clients    map[*client]struct{}
	broadcast  chan Event
	register   chan *client
	unregister chan *client

	startedAt time.Time
}

// NewHub creates a Hub wired to the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Event, sendBufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		startedAt:  time.Now(),
	}
}

// Run drives the hub loop until ctx is cancelled. It subscribes to every
// engine channel on the bus and fans messages out to matching clients.
func (h *Hub) Run(ctx context.Context) error {
	for _, channel := range defaultChannels {
		if err := h.subscribeToChannel(ctx, channel); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.InfoContext(ctx, "client connected",
				slog.String("remote_addr", c.remoteAddr),
				slog.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.InfoContext(ctx, "client disconnected",
					slog.String("remote_addr", c.remoteAddr),
					slog.Int("clients", len(h.clients)))
			}

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			for c := range h.clients {
				if !c.isSubscribed(event.Channel) {
					continue
				}
				select {
				case c.send <- data:
				default:
					// Slow consumer; drop it.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// subscribeToChannel pumps one bus channel into the broadcast queue.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) error {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	go func() {
		for payload := range msgs {
			h.broadcast <- Event{
				Channel:   channel,
				Data:      json.RawMessage(payload),
				Timestamp: time.Now().UTC(),
			}
		}
	}()

	return nil
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		channels:   make(map[string]struct{}),
		remoteAddr: r.RemoteAddr,
	}
	for _, channel := range defaultChannels {
		c.channels[channel] = struct{}{}
	}

	h.register <- c

	go c.writePump()
	go c.readPump()

	c.sendWelcome()
}

// statusPayload builds the greeting sent to a freshly connected client.
func (h *Hub) statusPayload() []byte {
	payload, _ := json.Marshal(map[string]any{
		"type":           "status",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"channels":       defaultChannels,
	})
	return payload
}

// client is a middleman between a WebSocket connection and the hub.
type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string

	mu       sync.RWMutex
	channels map[string]struct{}
}

// subscribeMsg is the control message clients send to change their channel
// subscriptions.
type subscribeMsg struct {
	Action      string   `json:"action"`
	Subscribe   []string `json:"subscribe,omitempty"`
	Unsubscribe []string `json:"unsubscribe,omitempty"`
}

// isSubscribed reports whether the client wants events from the channel.
// A subscription ending in "*" matches any channel with that prefix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for sub := range c.channels {
		if sub == channel {
			return true
		}
		if strings.HasSuffix(sub, "*") && strings.HasPrefix(channel, strings.TrimSuffix(sub, "*")) {
			return true
		}
	}
	return false
}

func (c *client) sendWelcome() {
	select {
	case c.send <- c.hub.statusPayload():
	default:
	}
}

// readPump reads control messages from the peer and applies subscription
// changes. It terminates on read error and unregisters the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg subscribeMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.mu.Lock()
		switch msg.Action {
		case "subscribe":
			for _, channel := range msg.Subscribe {
				c.channels[channel] = struct{}{}
			}
		case "unsubscribe":
			for _, channel := range msg.Unsubscribe {
				delete(c.channels, channel)
			}
		}
		c.mu.Unlock()
	}
}

// writePump writes queued messages to the peer and keeps the connection
// alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
