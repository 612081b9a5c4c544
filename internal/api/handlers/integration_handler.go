package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	syncengine "syncline/internal/engine/sync"
	"syncline/internal/pkg/errors"
	"syncline/internal/platform/models"
	"syncline/internal/platform/repositories"
)

type IntegrationHandler struct {
	configs *repositories.IntegrationConfigRepository
	engine  *syncengine.Engine
}

func NewIntegrationHandler(configs *repositories.IntegrationConfigRepository, engine *syncengine.Engine) *IntegrationHandler {
	return &IntegrationHandler{configs: configs, engine: engine}
}

type createIntegrationRequest struct {
	OrganizationID string          `json:"organization_id"`
	Provider       models.Provider `json:"provider"`
	Credentials    json.RawMessage `json:"credentials"`
	Settings       json.RawMessage `json:"settings"`
	Enabled        *bool           `json:"enabled"`
}

func (h *IntegrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	orgID := req.OrganizationID
	if claims := claimsFrom(r); claims != nil && claims.OrganizationID != "" {
		orgID = claims.OrganizationID
	}
	if orgID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "organization_id is required", nil)
		return
	}
	if !req.Provider.Valid() {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown provider", req.Provider)
		return
	}
	if err := syncengine.ValidateSettings(req.Provider, req.Settings); err != nil {
		errors.WriteError(w, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	if existing, err := h.configs.GetByOrgAndProvider(orgID, req.Provider); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to check existing config", nil)
		return
	} else if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Integration already configured for provider", nil)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	secret := make([]byte, 16)
	rand.Read(secret)

	cfg := &models.IntegrationConfig{
		OrganizationID: orgID,
		Provider:       req.Provider,
		Enabled:        enabled,
		Credentials:    req.Credentials,
		Settings:       req.Settings,
		WebhookSecret:  hex.EncodeToString(secret),
		Status:         models.IntegrationActive,
	}

	if err := h.configs.Create(cfg); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create integration", nil)
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	orgID := r.URL.Query().Get("organization_id")
	if claims != nil && claims.OrganizationID != "" {
		orgID = claims.OrganizationID
	}
	if orgID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "organization_id is required", nil)
		return
	}

	configs, err := h.configs.ListByOrg(orgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list integrations", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"integrations": configs})
}

// load resolves the config and enforces org scoping: callers bound to an
// organization can only see their own configs.
func (h *IntegrationHandler) load(w http.ResponseWriter, r *http.Request) *models.IntegrationConfig {
	cfg, err := h.configs.GetByID(param(r, "config_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load integration", nil)
		return nil
	}
	if cfg == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Integration not found", nil)
		return nil
	}
	if claims := claimsFrom(r); claims != nil && claims.OrganizationID != "" && claims.OrganizationID != cfg.OrganizationID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Integration not found", nil)
		return nil
	}
	return cfg
}

func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cfg := h.load(w, r); cfg != nil {
		writeJSON(w, http.StatusOK, cfg)
	}
}

type updateIntegrationRequest struct {
	Enabled     *bool           `json:"enabled"`
	Credentials json.RawMessage `json:"credentials"`
	Settings    json.RawMessage `json:"settings"`
}

func (h *IntegrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	cfg := h.load(w, r)
	if cfg == nil {
		return
	}

	var req updateIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.Settings != nil {
		if err := syncengine.ValidateSettings(cfg.Provider, req.Settings); err != nil {
			errors.WriteError(w, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, err.Error(), nil)
			return
		}
		cfg.Settings = req.Settings
	}
	if req.Credentials != nil {
		cfg.Credentials = req.Credentials
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
		if cfg.Enabled && cfg.Status == models.IntegrationDisabled {
			cfg.Status = models.IntegrationActive
		}
	}

	if err := h.configs.Update(cfg); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update integration", nil)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// Disable turns the integration off; run history is kept.
func (h *IntegrationHandler) Disable(w http.ResponseWriter, r *http.Request) {
	cfg := h.load(w, r)
	if cfg == nil {
		return
	}

	if err := h.configs.Disable(cfg.ID); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to disable integration", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type triggerSyncRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// TriggerSync starts a MANUAL run for the integration. Supplying the same
// idempotency key twice is a free no-op returning the original run id.
func (h *IntegrationHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	cfg := h.load(w, r)
	if cfg == nil {
		return
	}

	var req triggerSyncRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	key := req.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("manual:%s:%s", cfg.ID, uuid.New().String())
	}

	runID, err := h.engine.SyncIntegration(r.Context(), cfg, syncengine.SyncOptions{
		RunType:        models.RunTypeManual,
		IdempotencyKey: key,
	})

	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "idempotency_key": key})
	case stderrors.Is(err, syncengine.ErrRunInProgress):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeRunInProgress, "A run for this key is still in progress", map[string]string{"run_id": runID})
	case stderrors.Is(err, syncengine.ErrRunAlreadyFailed):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Key is bound to a failed run; replay it instead", map[string]string{"run_id": runID})
	case stderrors.Is(err, syncengine.ErrConfigDisabled):
		errors.WriteError(w, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, "Integration is disabled", nil)
	default:
		// Run finalized FAILED; surface the provider error with the run id
		// so the operator can find it in the dead-letter listing.
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeInternal, err.Error(), map[string]string{
			"run_id":      runID,
			"finished_at": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
