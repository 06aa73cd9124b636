package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker is anything that can report its own liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler reports service health, including the status of backing
// stores when they are wired in.
type HealthHandler struct {
	startedAt time.Time
	version   string
	checks    map[string]HealthChecker
}

// NewHealthHandler creates a HealthHandler. The checks map may be nil.
func NewHealthHandler(version string, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{
		startedAt: time.Now(),
		version:   version,
		checks:    checks,
	}
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, c := range h.checks {
		if err := c.Health(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
		} else {
			deps[name] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"dependencies":   deps,
	})
}
