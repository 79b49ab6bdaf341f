package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"gopartsync_api/internal/core/models"
	"gopartsync_api/internal/pricing"
	"gopartsync_api/pkg/api"
)

// PricingService - операции выбора цены над одним товаром.
type PricingService interface {
	Margins() *pricing.MarginSource
	SelectBest(ctx context.Context, itemID int64) (*pricing.Selection, error)
	RecomputeTags(ctx context.Context, itemID int64) ([]models.Supplier, bool, error)
	OverridePrice(ctx context.Context, itemID int64, price decimal.Decimal, stock int) (*models.Item, error)
}

type PricingHandler struct {
	svc PricingService
}

func NewPricingHandler(svc PricingService) *PricingHandler {
	return &PricingHandler{svc: svc}
}

func (h *PricingHandler) GetMargins(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Margins().Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, m)
}

type marginsRequest struct {
	Default   *decimal.Decimal           `json:"default"`
	Suppliers map[string]decimal.Decimal `json:"suppliers"`
}

// UpdateMargins принимает ключи поставщиков в любом написании ("Başbuğ", "basbug").
func (h *PricingHandler) UpdateMargins(w http.ResponseWriter, r *http.Request) {
	var req marginsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	suppliers := make(map[models.Supplier]decimal.Decimal, len(req.Suppliers))
	for key, v := range req.Suppliers {
		s, err := models.ParseSupplier(key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		suppliers[s] = v
	}

	if err := h.svc.Margins().Update(r.Context(), req.Default, suppliers); err != nil {
		writeError(w, r, err)
		return
	}
	h.GetMargins(w, r)
}

type noneAvailableResponse struct {
	ItemID        int64 `json:"itemId"`
	NoneAvailable bool  `json:"noneAvailable"`
}

func (h *PricingHandler) SelectBest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	sel, err := h.svc.SelectBest(r.Context(), id)
	if errors.Is(err, pricing.ErrNoneAvailable) {
		api.WriteJSON(w, http.StatusOK, noneAvailableResponse{ItemID: id, NoneAvailable: true})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, sel)
}

type tagsResponse struct {
	ItemID  int64             `json:"itemId"`
	Tags    []models.Supplier `json:"tags"`
	Changed bool              `json:"changed"`
}

func (h *PricingHandler) UpdateTags(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	tags, changed, err := h.svc.RecomputeTags(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tags == nil {
		tags = []models.Supplier{}
	}
	api.WriteJSON(w, http.StatusOK, tagsResponse{ItemID: id, Tags: tags, Changed: changed})
}

type overrideRequest struct {
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock"`
}

func (h *PricingHandler) OverridePrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	var req overrideRequest
	if err := decodeJSON(r, &req, false); err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}
	if req.Price == nil || req.Stock == nil {
		api.WriteBadRequest(w, "price and stock are required", r.URL.Path)
		return
	}
	item, err := h.svc.OverridePrice(r.Context(), id, *req.Price, *req.Stock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, item)
}
