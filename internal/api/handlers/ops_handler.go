package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"syncline/internal/engine/deadletter"
	syncengine "syncline/internal/engine/sync"
	"syncline/internal/pkg/errors"
	"syncline/internal/platform/models"
)

// OpsHandler exposes the dead-letter and backfill surface for operators.
type OpsHandler struct {
	deadletters *deadletter.Service
}

func NewOpsHandler(deadletters *deadletter.Service) *OpsHandler {
	return &OpsHandler{deadletters: deadletters}
}

func listFilters(r *http.Request) (models.Provider, int) {
	provider := models.Provider(r.URL.Query().Get("provider"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return provider, limit
}

func (h *OpsHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	provider, limit := listFilters(r)

	list, err := h.deadletters.ListDeadLetters(r.Context(), provider, limit)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list dead-letter runs", nil)
		return
	}
	if list.FailedRuns == nil {
		list.FailedRuns = []*models.IntegrationRun{}
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *OpsHandler) Replay(w http.ResponseWriter, r *http.Request) {
	runID, err := h.deadletters.Replay(r.Context(), param(r, "run_id"))

	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	case stderrors.Is(err, deadletter.ErrRunNotFound), stderrors.Is(err, deadletter.ErrConfigNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, err.Error(), nil)
	case stderrors.Is(err, deadletter.ErrNotReplayable):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeNotReplayable, err.Error(), nil)
	case stderrors.Is(err, syncengine.ErrRunInProgress):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeRunInProgress, "Replay already in progress", map[string]string{"run_id": runID})
	default:
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeInternal, err.Error(), map[string]string{"run_id": runID})
	}
}

func (h *OpsHandler) ListBackfills(w http.ResponseWriter, r *http.Request) {
	provider, limit := listFilters(r)

	list, err := h.deadletters.ListBackfills(r.Context(), provider, limit)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list backfills", nil)
		return
	}
	if list.Backfills == nil {
		list.Backfills = []*models.IntegrationRun{}
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *OpsHandler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	var req deadletter.BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	runID, err := h.deadletters.TriggerBackfill(r.Context(), req)

	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	case stderrors.Is(err, deadletter.ErrInvalidRange):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	case stderrors.Is(err, deadletter.ErrConfigNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, err.Error(), nil)
	case stderrors.Is(err, syncengine.ErrRunInProgress):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeRunInProgress, "Backfill already in progress", map[string]string{"run_id": runID})
	default:
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeInternal, err.Error(), map[string]string{"run_id": runID})
	}
}
