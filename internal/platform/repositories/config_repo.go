package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"syncline/internal/platform/models"
)

type IntegrationConfigRepository struct {
	db *sql.DB
}

func NewIntegrationConfigRepository(db *sql.DB) *IntegrationConfigRepository {
	return &IntegrationConfigRepository{db: db}
}

const configColumns = `id, organization_id, provider, enabled, credentials, settings,
	       sync_cursor, webhook_secret, status, last_sync_at, last_error, created_at, updated_at`

func (r *IntegrationConfigRepository) Create(cfg *models.IntegrationConfig) error {
	if cfg.ID == "" {
		cfg.ID = "cfg_" + uuid.New().String()
	}
	now := time.Now().Unix()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if cfg.Status == "" {
		cfg.Status = models.IntegrationActive
	}

	query := `
		INSERT INTO integration_configs (
			id, organization_id, provider, enabled, credentials, settings,
			sync_cursor, webhook_secret, status, last_sync_at, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		cfg.ID,
		cfg.OrganizationID,
		string(cfg.Provider),
		cfg.Enabled,
		string(cfg.Credentials),
		string(cfg.Settings),
		cfg.SyncCursor,
		cfg.WebhookSecret,
		string(cfg.Status),
		cfg.LastSyncAt,
		cfg.LastError,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	return err
}

func (r *IntegrationConfigRepository) GetByID(id string) (*models.IntegrationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM integration_configs WHERE id = ?`
	return scanConfig(r.db.QueryRow(query, id))
}

func (r *IntegrationConfigRepository) GetByOrgAndProvider(orgID string, provider models.Provider) (*models.IntegrationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM integration_configs WHERE organization_id = ? AND provider = ?`
	return scanConfig(r.db.QueryRow(query, orgID, string(provider)))
}

func (r *IntegrationConfigRepository) ListByOrg(orgID string) ([]*models.IntegrationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM integration_configs WHERE organization_id = ? ORDER BY created_at DESC`
	return r.queryConfigs(query, orgID)
}

// ListEnabled returns every enabled config across organizations; the
// scheduler iterates this on each pass.
func (r *IntegrationConfigRepository) ListEnabled() ([]*models.IntegrationConfig, error) {
	query := `SELECT ` + configColumns + ` FROM integration_configs WHERE enabled = 1 ORDER BY organization_id, provider`
	return r.queryConfigs(query)
}

func (r *IntegrationConfigRepository) queryConfigs(query string, args ...interface{}) ([]*models.IntegrationConfig, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.IntegrationConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (r *IntegrationConfigRepository) Update(cfg *models.IntegrationConfig) error {
	query := `
		UPDATE integration_configs SET
			enabled = ?, credentials = ?, settings = ?, webhook_secret = ?,
			status = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query,
		cfg.Enabled,
		string(cfg.Credentials),
		string(cfg.Settings),
		cfg.WebhookSecret,
		string(cfg.Status),
		time.Now().Unix(),
		cfg.ID,
	)
	return err
}

// RecordSyncSuccess is the engine's post-run mutation on the happy path:
// cursor advances, status resets to ACTIVE, last_error clears.
func (r *IntegrationConfigRepository) RecordSyncSuccess(id, cursor string, syncedAt int64) error {
	query := `
		UPDATE integration_configs SET
			sync_cursor = ?, status = ?, last_sync_at = ?, last_error = '', updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, cursor, string(models.IntegrationActive), syncedAt, time.Now().Unix(), id)
	return err
}

// RecordSyncFailure downgrades the config. A first failure leaves it
// DEGRADED; a failure on an already-degraded config marks it FAILED.
func (r *IntegrationConfigRepository) RecordSyncFailure(id, errMsg string) error {
	query := `
		UPDATE integration_configs SET
			status = CASE WHEN status IN ('DEGRADED', 'FAILED') THEN 'FAILED' ELSE 'DEGRADED' END,
			last_error = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, errMsg, time.Now().Unix(), id)
	return err
}

// Disable turns the integration off without deleting any history.
func (r *IntegrationConfigRepository) Disable(id string) error {
	query := `UPDATE integration_configs SET enabled = 0, status = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.Exec(query, string(models.IntegrationDisabled), time.Now().Unix(), id)
	return err
}

// CountStale counts configs whose last successful sync is older than the
// cutoff. Configs that never synced count as stale; disabled ones do not.
func (r *IntegrationConfigRepository) CountStale(olderThan int64) (int, error) {
	var n int
	query := `
		SELECT COUNT(*) FROM integration_configs
		WHERE enabled = 1 AND (last_sync_at IS NULL OR last_sync_at < ?)
	`
	err := r.db.QueryRow(query, olderThan).Scan(&n)
	return n, err
}

// CountDisabled counts integrations awaiting operator re-enable.
func (r *IntegrationConfigRepository) CountDisabled() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM integration_configs WHERE enabled = 0`).Scan(&n)
	return n, err
}

func scanConfig(s interface {
	Scan(dest ...interface{}) error
}) (*models.IntegrationConfig, error) {
	var cfg models.IntegrationConfig
	var provider, status, credentials, settings string
	var lastSyncAt sql.NullInt64

	err := s.Scan(
		&cfg.ID,
		&cfg.OrganizationID,
		&provider,
		&cfg.Enabled,
		&credentials,
		&settings,
		&cfg.SyncCursor,
		&cfg.WebhookSecret,
		&status,
		&lastSyncAt,
		&cfg.LastError,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	cfg.Provider = models.Provider(provider)
	cfg.Status = models.IntegrationStatus(status)
	if credentials != "" {
		cfg.Credentials = []byte(credentials)
	}
	if settings != "" {
		cfg.Settings = []byte(settings)
	}
	if lastSyncAt.Valid {
		val := lastSyncAt.Int64
		cfg.LastSyncAt = &val
	}

	return &cfg, nil
}
