package sync

import (
	"context"
	"database/sql"

	"syncline/internal/platform/models"
)

// RunLedger is the durable record of every sync attempt. The engine is the
// only writer; the dead-letter manager and SLO monitor read it and re-enter
// through the engine for replays and backfills.
type RunLedger interface {
	// InsertIfAbsent atomically claims the idempotency key. It returns the
	// run bound to the key and whether this call created it; when inserted
	// is false the returned run is whichever earlier submission won.
	InsertIfAbsent(ctx context.Context, run *models.IntegrationRun) (claimed *models.IntegrationRun, inserted bool, err error)

	FindByIdempotencyKey(ctx context.Context, key string) (*models.IntegrationRun, error)
	GetByID(ctx context.Context, id string) (*models.IntegrationRun, error)

	// MarkCompleted and MarkFailed finalize a run. They only ever touch
	// RUNNING rows; a terminal row is immutable.
	MarkCompleted(ctx context.Context, id string, finishedAt int64, processed, successes, failures int) error
	MarkFailed(ctx context.Context, id string, finishedAt int64, failures int, errMsg string) error

	ListFailed(ctx context.Context, provider models.Provider, limit int) ([]*models.IntegrationRun, error)
	CountFailed(ctx context.Context, provider models.Provider) (int, error)
	ListBackfills(ctx context.Context, provider models.Provider, limit int) ([]*models.IntegrationRun, error)

	WindowStats(ctx context.Context, since int64) (*WindowStats, error)
	TypeSummary(ctx context.Context, since int64) (map[models.RunType]*RunTypeSummary, error)
	CountFailedBackfills(ctx context.Context, since int64) (int, error)

	// FailOrphaned marks RUNNING rows started before the cutoff as FAILED.
	// The reconciliation sweep in the worker calls this.
	FailOrphaned(ctx context.Context, startedBefore int64, message string) (int, error)

	Ping(ctx context.Context) error
}

// ProviderFailures is the per-provider slice of a window aggregate.
// FailedRuns counts terminally failed runs; FailureEvents sums their
// failure counters (individual failed attempts).
type ProviderFailures struct {
	FailedRuns    int `json:"failed_runs"`
	FailureEvents int `json:"failure_events"`
}

type WindowStats struct {
	TotalRuns  int                                   `json:"total_runs"`
	FailedRuns int                                   `json:"failed_runs"`
	ByProvider map[models.Provider]*ProviderFailures `json:"by_provider"`
}

type RunTypeSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
	Processed int `json:"processed"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

const runColumns = `id, organization_id, provider, run_type, idempotency_key, status,
	       started_at, finished_at, processed_count, success_count, failure_count, error_message`

// SQLLedger is the sqlite-backed run ledger.
type SQLLedger struct {
	db *sql.DB
}

func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

func (l *SQLLedger) InsertIfAbsent(ctx context.Context, run *models.IntegrationRun) (*models.IntegrationRun, bool, error) {
	query := `
		INSERT OR IGNORE INTO integration_runs (
			id, organization_id, provider, run_type, idempotency_key, status,
			started_at, processed_count, success_count, failure_count, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, '')
	`
	res, err := l.db.ExecContext(ctx, query,
		run.ID,
		run.OrganizationID,
		string(run.Provider),
		string(run.RunType),
		run.IdempotencyKey,
		string(run.Status),
		run.StartedAt,
	)
	if err != nil {
		return nil, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	claimed, err := l.FindByIdempotencyKey(ctx, run.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return claimed, affected == 1, nil
}

func (l *SQLLedger) FindByIdempotencyKey(ctx context.Context, key string) (*models.IntegrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM integration_runs WHERE idempotency_key = ?`
	return scanRun(l.db.QueryRowContext(ctx, query, key))
}

func (l *SQLLedger) GetByID(ctx context.Context, id string) (*models.IntegrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM integration_runs WHERE id = ?`
	return scanRun(l.db.QueryRowContext(ctx, query, id))
}

func (l *SQLLedger) MarkCompleted(ctx context.Context, id string, finishedAt int64, processed, successes, failures int) error {
	query := `
		UPDATE integration_runs SET
			status = 'COMPLETED', finished_at = ?,
			processed_count = ?, success_count = ?, failure_count = ?
		WHERE id = ? AND status = 'RUNNING'
	`
	_, err := l.db.ExecContext(ctx, query, finishedAt, processed, successes, failures, id)
	return err
}

func (l *SQLLedger) MarkFailed(ctx context.Context, id string, finishedAt int64, failures int, errMsg string) error {
	query := `
		UPDATE integration_runs SET
			status = 'FAILED', finished_at = ?, failure_count = ?, error_message = ?
		WHERE id = ? AND status = 'RUNNING'
	`
	_, err := l.db.ExecContext(ctx, query, finishedAt, failures, errMsg, id)
	return err
}

func (l *SQLLedger) ListFailed(ctx context.Context, provider models.Provider, limit int) ([]*models.IntegrationRun, error) {
	return l.listByFilter(ctx, `status = 'FAILED'`, provider, limit)
}

func (l *SQLLedger) CountFailed(ctx context.Context, provider models.Provider) (int, error) {
	query := `SELECT COUNT(*) FROM integration_runs WHERE status = 'FAILED'`
	args := []interface{}{}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, string(provider))
	}

	var n int
	err := l.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (l *SQLLedger) ListBackfills(ctx context.Context, provider models.Provider, limit int) ([]*models.IntegrationRun, error) {
	return l.listByFilter(ctx, `run_type = 'BACKFILL'`, provider, limit)
}

func (l *SQLLedger) listByFilter(ctx context.Context, where string, provider models.Provider, limit int) ([]*models.IntegrationRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM integration_runs WHERE ` + where
	args := []interface{}{}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, string(provider))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.IntegrationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (l *SQLLedger) WindowStats(ctx context.Context, since int64) (*WindowStats, error) {
	stats := &WindowStats{ByProvider: make(map[models.Provider]*ProviderFailures)}

	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0)
		FROM integration_runs WHERE started_at >= ?
	`, since).Scan(&stats.TotalRuns, &stats.FailedRuns)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT provider, COUNT(*), COALESCE(SUM(failure_count), 0)
		FROM integration_runs
		WHERE started_at >= ? AND status = 'FAILED'
		GROUP BY provider
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var provider string
		pf := &ProviderFailures{}
		if err := rows.Scan(&provider, &pf.FailedRuns, &pf.FailureEvents); err != nil {
			return nil, err
		}
		stats.ByProvider[models.Provider(provider)] = pf
	}
	return stats, rows.Err()
}

func (l *SQLLedger) TypeSummary(ctx context.Context, since int64) (map[models.RunType]*RunTypeSummary, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_type,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'RUNNING' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(processed_count), 0),
		       COALESCE(SUM(success_count), 0),
		       COALESCE(SUM(failure_count), 0)
		FROM integration_runs
		WHERE started_at >= ?
		GROUP BY run_type
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make(map[models.RunType]*RunTypeSummary)
	for rows.Next() {
		var runType string
		s := &RunTypeSummary{}
		if err := rows.Scan(&runType, &s.Total, &s.Completed, &s.Failed, &s.Running, &s.Processed, &s.Successes, &s.Failures); err != nil {
			return nil, err
		}
		summary[models.RunType(runType)] = s
	}
	return summary, rows.Err()
}

func (l *SQLLedger) CountFailedBackfills(ctx context.Context, since int64) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM integration_runs
		WHERE run_type = 'BACKFILL' AND status = 'FAILED' AND started_at >= ?
	`, since).Scan(&n)
	return n, err
}

func (l *SQLLedger) FailOrphaned(ctx context.Context, startedBefore int64, message string) (int, error) {
	res, err := l.db.ExecContext(ctx, `
		UPDATE integration_runs SET
			status = 'FAILED', finished_at = strftime('%s', 'now'), error_message = ?
		WHERE status = 'RUNNING' AND started_at < ?
	`, message, startedBefore)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (l *SQLLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func scanRun(s interface {
	Scan(dest ...interface{}) error
}) (*models.IntegrationRun, error) {
	var run models.IntegrationRun
	var provider, runType, status string
	var finishedAt sql.NullInt64

	err := s.Scan(
		&run.ID,
		&run.OrganizationID,
		&provider,
		&runType,
		&run.IdempotencyKey,
		&status,
		&run.StartedAt,
		&finishedAt,
		&run.ProcessedCount,
		&run.SuccessCount,
		&run.FailureCount,
		&run.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	run.Provider = models.Provider(provider)
	run.RunType = models.RunType(runType)
	run.Status = models.RunStatus(status)
	if finishedAt.Valid {
		val := finishedAt.Int64
		run.FinishedAt = &val
	}

	return &run, nil
}
