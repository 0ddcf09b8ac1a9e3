package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/service"
	"github.com/pribylovaa/go-news-digest/internal/transport/http/apierrors"
)

type knownCountResponse struct {
	Count        int `json:"count"`
	Fingerprints int `json:"fingerprints"`
}

// KnownCount - GET /admin/known/count.
func (h *Handlers) KnownCount(w http.ResponseWriter, r *http.Request) {
	st := h.svc.DedupStats()
	writeJSON(w, http.StatusOK, knownCountResponse{Count: st.Keys, Fingerprints: st.Fingerprints})
}

type evictRequest struct {
	// OlderThan - длительность в формате time.ParseDuration, например "720h".
	OlderThan string `json:"older_than"`
}

type evictResponse struct {
	Evicted int `json:"evicted"`
	Count   int `json:"count"`
}

// EvictKnown - POST /admin/known/evict.
func (h *Handlers) EvictKnown(w http.ResponseWriter, r *http.Request) {
	var req evictRequest
	if err := decodeStrict(r, &req); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	age, err := time.ParseDuration(req.OlderThan)
	if err != nil {
		apierrors.WriteError(w, r, fmt.Errorf("older_than: %w: %w", service.ErrInvalidArgument, err))
		return
	}

	n, err := h.svc.EvictOlderThan(r.Context(), age)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evictResponse{Evicted: n, Count: h.svc.KnownCount()})
}
