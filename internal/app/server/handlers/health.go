package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"whisper/pkg/logging"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	log    *slog.Logger
	checks map[string]Check
}

func NewHealthHandler(log *slog.Logger, checks map[string]Check) *HealthHandler {
	return &HealthHandler{log: log, checks: checks}
}

// Health handles GET /healthz. Any failing check turns the response into a
// 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logging.FromContext(ctx, h.log).WarnContext(ctx, "health - check failed", slog.String("check", name), logging.Err(err))
			report[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "up"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": report})
}
