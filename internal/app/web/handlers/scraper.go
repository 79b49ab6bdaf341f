package handlers

import (
	"context"
	"net/http"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/scraper"
	"gopartsync_api/pkg/api"
)

// ScraperCoordinator - реестр воркеров и шлюз капчи.
type ScraperCoordinator interface {
	RegisterWorker(reg scraper.Registration) (*scraper.Worker, error)
	Heartbeat(workerID string, hb scraper.Heartbeat) error
	Workers() []scraper.WorkerView
	RequestScrape(ctx context.Context, itemID int64, stockCode string, supplier models.Supplier) (*scraper.Outcome, error)
	CaptchaStatus(s models.Supplier) (scraper.CaptchaState, error)
	ResolveCaptcha(s models.Supplier) (scraper.CaptchaState, error)
}

type ScraperHandler struct {
	coord ScraperCoordinator
}

func NewScraperHandler(coord ScraperCoordinator) *ScraperHandler {
	return &ScraperHandler{coord: coord}
}

func (h *ScraperHandler) Register(w http.ResponseWriter, r *http.Request) {
	var reg scraper.Registration
	if err := decodeJSON(r, &reg, false); err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	worker, err := h.coord.RegisterWorker(reg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, registerResponse{Worker: worker, ScraperID: worker.ID})
}

// registerResponse дублирует id как scraperId: воркеры читают это поле для heartbeat.
type registerResponse struct {
	*scraper.Worker
	ScraperID string `json:"scraperId"`
}

func (h *ScraperHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var hb scraper.Heartbeat
	if err := decodeJSON(r, &hb, true); err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	if err := h.coord.Heartbeat(r.PathValue("id"), hb); err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ScraperHandler) Workers(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"workers": h.coord.Workers()})
}

type scrapeRequest struct {
	ItemID    int64           `json:"itemId"`
	StockCode string          `json:"stockCode"`
	Supplier  models.Supplier `json:"supplier"`
}

// RequestUpdate отдаёт исход запроса: 423 при капче, 502 при сбое воркера.
func (h *ScraperHandler) RequestUpdate(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	if req.ItemID <= 0 {
		api.WriteBadRequest(w, "itemId is required", r.URL.Path)
		return
	}
	if !req.Supplier.Valid() {
		api.WriteBadRequest(w, "supplier is required", r.URL.Path)
		return
	}

	out, err := h.coord.RequestScrape(r.Context(), req.ItemID, req.StockCode, req.Supplier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	switch out.Kind {
	case scraper.OutcomeBlocked:
		status = http.StatusLocked
	case scraper.OutcomeTransportError:
		status = http.StatusBadGateway
	}
	api.WriteJSON(w, status, out)
}

func (h *ScraperHandler) CaptchaStatus(w http.ResponseWriter, r *http.Request) {
	h.captcha(w, r, h.coord.CaptchaStatus)
}

func (h *ScraperHandler) ResolveCaptcha(w http.ResponseWriter, r *http.Request) {
	h.captcha(w, r, h.coord.ResolveCaptcha)
}

func (h *ScraperHandler) captcha(w http.ResponseWriter, r *http.Request, op func(models.Supplier) (scraper.CaptchaState, error)) {
	s, err := pathSupplier(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := op(s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, st)
}
