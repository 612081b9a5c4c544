package handlers

import (
	"net/http"

	"syncline/internal/engine/slo"
)

type HealthHandler struct {
	monitor *slo.Service
}

func NewHealthHandler(monitor *slo.Service) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	report := h.monitor.SyntheticHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == slo.StatusCritical {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, report)
}
