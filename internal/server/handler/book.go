package handler

import (
	"context"
	"net/http"

	"github.com/outcomelab/predengine/internal/domain"
)

// BookReader is the slice of the trading layer the book endpoints use.
type BookReader interface {
	Depth(ctx context.Context, marketID string, outcome domain.Outcome) (domain.DepthSnapshot, error)
	BookStats(ctx context.Context, marketID string) (domain.BookStats, error)
}

// BookHandler exposes read-only order book views.
type BookHandler struct {
	books BookReader
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(books BookReader) *BookHandler {
	return &BookHandler{books: books}
}

// Depth handles GET /api/markets/{market}/book. The outcome query parameter
// selects which side of the market, defaulting to yes.
func (h *BookHandler) Depth(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")

	outcome, err := parseOutcome(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.books.Depth(r.Context(), marketID, outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// Stats handles GET /api/markets/{market}/book/stats.
func (h *BookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market")

	stats, err := h.books.BookStats(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
