package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/outcomelab/predengine/internal/domain"
)

// replayableChannels are the bus channels with a durable stream backing.
var replayableChannels = map[string]bool{
	domain.ChannelTrades: true,
	domain.ChannelSwaps:  true,
}

// EventsHandler serves durable event stream replay for consumers that missed
// live pub/sub messages.
type EventsHandler struct {
	bus domain.SignalBus
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(bus domain.SignalBus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

type replayedEvent struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Replay handles GET /api/events/{channel}. The since query parameter is a
// stream id ("0" replays from the beginning); limit defaults to 100, max 500.
func (h *EventsHandler) Replay(w http.ResponseWriter, r *http.Request) {
	channel := pathParam(r, "channel")
	if !replayableChannels[channel] {
		writeError(w, http.StatusNotFound, "unknown event stream")
		return
	}

	q := r.URL.Query()
	since := q.Get("since")
	if since == "" {
		since = "0"
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	msgs, err := h.bus.StreamRead(r.Context(), "stream:"+channel, since, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	events := make([]replayedEvent, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, replayedEvent{ID: m.ID, Data: json.RawMessage(m.Payload)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"events":  events,
		"count":   len(events),
	})
}
