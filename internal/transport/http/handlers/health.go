package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pribylovaa/go-news-digest/internal/service"
	"github.com/pribylovaa/go-news-digest/internal/transport/http/apierrors"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

type healthResponse struct {
	Status string `json:"status"`
}

// Livez - процесс жив.
func (h *Handlers) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Healthz - зависимости отвечают.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			log.From(r.Context()).Warn("not_ready", slog.String("err", err.Error()))
			apierrors.WriteError(w, r, service.ErrUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
