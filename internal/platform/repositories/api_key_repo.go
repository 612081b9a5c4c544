package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"syncline/internal/platform/models"
)

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(key *models.APIKey) error {
	if key.ID == "" {
		key.ID = "key_" + uuid.New().String()
	}
	key.CreatedAt = time.Now().Unix()

	query := `
		INSERT INTO api_keys (id, name, key_hash, key_prefix, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Role, key.CreatedAt)
	return err
}

func (r *APIKeyRepository) GetByPrefix(prefix string) (*models.APIKey, error) {
	query := `SELECT id, name, key_hash, key_prefix, role, created_at, revoked_at FROM api_keys WHERE key_prefix = ?`
	row := r.db.QueryRow(query, prefix)

	var k models.APIKey
	var revokedAt sql.NullInt64
	err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.CreatedAt, &revokedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if revokedAt.Valid {
		val := revokedAt.Int64
		k.RevokedAt = &val
	}

	return &k, nil
}

func (r *APIKeyRepository) Revoke(id string) error {
	query := `UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`
	_, err := r.db.Exec(query, time.Now().Unix(), id)
	return err
}
