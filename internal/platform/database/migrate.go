package database

import "database/sql"

// Schema is the persisted state of the sync engine. Exactly two domain
// tables; every operator-facing view (dead-letter, backfill, SLO, pipeline
// status) is computed on read.
//
// The unique index on idempotency_key is load-bearing: it turns the
// check-then-create sequence into a single atomic claim (INSERT OR IGNORE,
// then re-fetch whichever row won).
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS integration_configs (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		credentials TEXT,
		settings TEXT,
		sync_cursor TEXT NOT NULL DEFAULT '',
		webhook_secret TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		last_sync_at INTEGER,
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(organization_id, provider)
	);`,

	`CREATE TABLE IF NOT EXISTS integration_runs (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		run_type TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'RUNNING',
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		processed_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT ''
	);`,

	`CREATE INDEX IF NOT EXISTS idx_runs_status_started ON integration_runs(status, started_at);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_provider ON integration_runs(provider, status);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_type ON integration_runs(run_type, started_at);`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		key_prefix TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'operator',
		created_at INTEGER NOT NULL,
		revoked_at INTEGER
	);`,
}

func Migrate(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
