package handlers

import (
	"context"
	"net/http"
	"time"

	"gopartsync_api/pkg/api"
)

// Pinger - зависимость, доступность которой проверяет /health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

// NewHealthHandler: db может быть nil при хранилище в памяти.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "database": "memory"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			api.WriteServiceUnavailable(w, "database unavailable: "+err.Error(), r.URL.Path)
			return
		}
		resp["database"] = "ok"
	}
	api.WriteJSON(w, http.StatusOK, resp)
}
