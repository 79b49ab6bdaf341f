package handlers

import (
	"context"
	"net/http"
	"strconv"

	"gopartsync_api/internal/quotefeed"
	"gopartsync_api/pkg/api"
)

// FeedRefresher - ручной запуск загрузки прайс-листов.
type FeedRefresher interface {
	RefreshAll(ctx context.Context, force bool) ([]*quotefeed.Result, []error)
}

type QuotesHandler struct {
	feeds FeedRefresher
}

func NewQuotesHandler(feeds FeedRefresher) *QuotesHandler {
	return &QuotesHandler{feeds: feeds}
}

type refreshResponse struct {
	Results []*quotefeed.Result `json:"results"`
	Errors  []string            `json:"errors"`
}

// Refresh: ?force=true игнорирует время изменения прайс-листа. 502, только если не удалось ни одно обновление.
func (h *QuotesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.WriteBadRequest(w, "force must be a boolean", r.URL.Path)
			return
		}
		force = v
	}

	results, errs := h.feeds.RefreshAll(r.Context(), force)
	resp := refreshResponse{Results: results, Errors: make([]string, 0, len(errs))}
	if resp.Results == nil {
		resp.Results = []*quotefeed.Result{}
	}
	for _, err := range errs {
		resp.Errors = append(resp.Errors, err.Error())
	}

	status := http.StatusOK
	if len(results) == 0 && len(errs) > 0 {
		status = http.StatusBadGateway
	}
	api.WriteJSON(w, status, resp)
}
