package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// HealthHandler answers liveness probes. It pings the store so a wedged
// database shows up as unhealthy rather than a silent 200.
type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "unhealthy", "database unreachable", nil)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"status": "ok"})
}
