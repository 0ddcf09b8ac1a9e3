package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/transport/http/apierrors"
)

type promotionsResponse struct {
	Promotions []models.PromotionEntry `json:"promotions"`
}

// promotionResponse - Promotion == nil означает, что активных слотов нет.
type promotionResponse struct {
	Promotion *models.PromotionEntry `json:"promotion"`
}

type selectRequest struct {
	Name string `json:"name"`
}

type historyResponse struct {
	History []models.RotationRecord `json:"history"`
}

// ListPromotions - GET /admin/promotions: активные слоты в порядке выбора.
func (h *Handlers) ListPromotions(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ActivePromotions(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, promotionsResponse{Promotions: out})
}

// CurrentPromotion - GET /admin/promotions/current.
func (h *Handlers) CurrentPromotion(w http.ResponseWriter, r *http.Request) {
	cur, err := h.svc.CurrentPromotion(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, promotionResponse{Promotion: cur})
}

// AdvancePromotion - POST /admin/promotions/advance.
func (h *Handlers) AdvancePromotion(w http.ResponseWriter, r *http.Request) {
	next, err := h.svc.ForceAdvance(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, promotionResponse{Promotion: next})
}

// SelectPromotion - POST /admin/promotions/select {"name": "..."}.
func (h *Handlers) SelectPromotion(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeStrict(r, &req); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.ForceSelect(r.Context(), req.Name); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.CurrentPromotion(w, r)
}

// ActivatePromotion - POST /admin/promotions/{name}/activate.
func (h *Handlers) ActivatePromotion(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// DeactivatePromotion - POST /admin/promotions/{name}/deactivate.
func (h *Handlers) DeactivatePromotion(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	name := chi.URLParam(r, "name")

	if err := h.svc.SetPromotionActive(r.Context(), name, active); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RotationStats - GET /admin/rotation/stats.
func (h *Handlers) RotationStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.RotationStats(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// RotationHistory - GET /admin/rotation/history?limit=N, новые первыми.
func (h *Handlers) RotationHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out, err := h.svc.RotationHistory(r.Context(), limit)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{History: out})
}
