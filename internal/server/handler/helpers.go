package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/outcomelab/predengine/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps well-known domain errors to HTTP status codes so
// handlers stay free of per-error switch statements. Unknown errors are
// reported as a 500 with a generic message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNotOrderMaker):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrAmountTooSmall),
		errors.Is(err, domain.ErrOrderNotOpen),
		errors.Is(err, domain.ErrNoMatchingOrders),
		errors.Is(err, domain.ErrRatioMismatch),
		errors.Is(err, domain.ErrOverflow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrPoolInactive),
		errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// parseUint parses a non-negative integer query value.
func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("missing value")
	}
	return strconv.ParseUint(s, 10, 64)
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// callerIdentity resolves the acting account for mutating requests. The
// engine trusts the gateway in front of it; the identity arrives in a header
// set by that gateway.
func callerIdentity(r *http.Request) string {
	return r.Header.Get("X-Account-ID")
}

// parseOutcome reads the outcome query parameter, defaulting to YES.
func parseOutcome(r *http.Request) (domain.Outcome, error) {
	switch r.URL.Query().Get("outcome") {
	case "", string(domain.OutcomeYes):
		return domain.OutcomeYes, nil
	case string(domain.OutcomeNo):
		return domain.OutcomeNo, nil
	default:
		return "", errors.New("outcome must be yes or no")
	}
}
