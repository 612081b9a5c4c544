package handlers

import (
	"net/http"
	"strconv"

	"syncline/internal/engine/slo"
	"syncline/internal/pkg/errors"
)

type SLOHandler struct {
	monitor *slo.Service
}

func NewSLOHandler(monitor *slo.Service) *SLOHandler {
	return &SLOHandler{monitor: monitor}
}

func windowHours(r *http.Request) int {
	hours, _ := strconv.Atoi(r.URL.Query().Get("window_hours"))
	return hours
}

func (h *SLOHandler) QueueSLO(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.QueueSLO(r.Context(), windowHours(r))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to compute SLO metrics", nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *SLOHandler) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.PipelineStatus(r.Context(), windowHours(r))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to compute pipeline status", nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
