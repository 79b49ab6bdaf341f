package handlers

import (
	"net/http"

	"gopartsync_api/internal/auth"
	"gopartsync_api/internal/ratelimit"
	"gopartsync_api/pkg/api"
)

type RateLimitHandler struct {
	limiter *ratelimit.Limiter
}

func NewRateLimitHandler(limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Status показывает окно вызывающего клиента без расхода запроса.
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	class := ratelimit.ClassGeneral
	switch q := r.URL.Query().Get("class"); q {
	case "", string(ratelimit.ClassGeneral):
	case string(ratelimit.ClassStorefront):
		class = ratelimit.ClassStorefront
	default:
		api.WriteBadRequest(w, "class must be general or storefront", r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.limiter.Status(auth.RateLimitKey(r), class))
}
