package handlers

import (
	"net/http"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
	"github.com/pribylovaa/go-news-digest/internal/service"
	"github.com/pribylovaa/go-news-digest/internal/transport/http/apierrors"
)

// cycleResponse - CycleResult с этапом и текстом ошибки.
// Stage - этап, на котором цикл остановился (DONE при успехе).
type cycleResponse struct {
	pipeline.CycleResult
	Stage string `json:"stage"`
	Error string `json:"error,omitempty"`
}

func toCycleResponse(res pipeline.CycleResult) cycleResponse {
	out := cycleResponse{CycleResult: res, Stage: res.Stage.String()}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

type runsResponse struct {
	Runs []models.DigestRun `json:"runs"`
}

type archiveResponse struct {
	Digests []models.ArchiveEntry `json:"digests"`
}

// TriggerCycle - POST /admin/cycles: синхронно выполняет один цикл.
// Проваленный цикл - тоже 200: исход виден в поле kind.
// Если цикл уже идёт - 409.
func (h *Handlers) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunCycle(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCycleResponse(res))
}

// LastCycle - GET /admin/cycles/last: результат последнего цикла процесса.
func (h *Handlers) LastCycle(w http.ResponseWriter, r *http.Request) {
	res := h.svc.LastResult()
	if res == nil {
		apierrors.WriteError(w, r, service.ErrNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toCycleResponse(*res))
}

// RecentRuns - GET /admin/runs?limit=N.
func (h *Handlers) RecentRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	runs, err := h.svc.RecentRuns(r.Context(), limit)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

// RecentArchive - GET /admin/archive?limit=N. Без индекса архива - 501.
func (h *Handlers) RecentArchive(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out, err := h.svc.RecentArchive(r.Context(), limit)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, archiveResponse{Digests: out})
}
