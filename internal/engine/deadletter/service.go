package deadletter

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	syncengine "syncline/internal/engine/sync"
	"syncline/internal/platform/models"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrNotReplayable  = errors.New("only failed runs can be replayed")
	ErrConfigNotFound = errors.New("integration config not found")
	ErrInvalidRange   = errors.New("backfill requires a date range or cursor")
)

// Syncer is the re-entry point into the sync engine; replays and backfills
// go through it so they inherit idempotency and retry guarantees.
type Syncer interface {
	SyncIntegration(ctx context.Context, cfg *models.IntegrationConfig, opts syncengine.SyncOptions) (string, error)
}

// ConfigLookup resolves the owning config for a failed run's parameters.
type ConfigLookup interface {
	GetByOrgAndProvider(orgID string, provider models.Provider) (*models.IntegrationConfig, error)
}

// DeadLetterList is the operator view over terminally failed runs.
type DeadLetterList struct {
	FailedRuns  []*models.IntegrationRun `json:"failed_runs"`
	TotalFailed int                      `json:"total_failed"`
}

type BackfillList struct {
	Backfills []*models.IntegrationRun `json:"backfills"`
}

type BackfillRequest struct {
	OrganizationID string          `json:"organization_id"`
	Provider       models.Provider `json:"provider"`
	From           int64           `json:"from,omitempty"`
	To             int64           `json:"to,omitempty"`
	Cursor         string          `json:"cursor,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Service reads the run ledger for operator visibility and re-submits failed
// or historical work as new, separately idempotent runs. It never mutates
// ledger rows directly.
type Service struct {
	ledger  syncengine.RunLedger
	configs ConfigLookup
	engine  Syncer
}

func NewService(ledger syncengine.RunLedger, configs ConfigLookup, engine Syncer) *Service {
	return &Service{ledger: ledger, configs: configs, engine: engine}
}

func (s *Service) ListDeadLetters(ctx context.Context, provider models.Provider, limit int) (*DeadLetterList, error) {
	runs, err := s.ledger.ListFailed(ctx, provider, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.ledger.CountFailed(ctx, provider)
	if err != nil {
		return nil, err
	}
	return &DeadLetterList{FailedRuns: runs, TotalFailed: total}, nil
}

// Replay re-submits a failed run's parameters under a freshly derived
// idempotency key. The original FAILED row stays untouched as the audit
// record; reusing its key would collide with that terminal row.
func (s *Service) Replay(ctx context.Context, runID string) (string, error) {
	run, err := s.ledger.GetByID(ctx, runID)
	if err != nil {
		return "", err
	}
	if run == nil {
		return "", ErrRunNotFound
	}
	if run.Status != models.RunFailed {
		return "", fmt.Errorf("%w: run %s is %s", ErrNotReplayable, runID, run.Status)
	}

	cfg, err := s.configs.GetByOrgAndProvider(run.OrganizationID, run.Provider)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return "", ErrConfigNotFound
	}

	key := fmt.Sprintf("replay:%s:%s", run.IdempotencyKey, uuid.New().String())

	log.Info().
		Str("dead_run_id", runID).
		Str("idempotency_key", key).
		Msg("replaying dead-letter run")

	return s.engine.SyncIntegration(ctx, cfg, syncengine.SyncOptions{
		RunType:        models.RunTypeReplay,
		IdempotencyKey: key,
	})
}

func (s *Service) ListBackfills(ctx context.Context, provider models.Provider, limit int) (*BackfillList, error) {
	runs, err := s.ledger.ListBackfills(ctx, provider, limit)
	if err != nil {
		return nil, err
	}
	return &BackfillList{Backfills: runs}, nil
}

// TriggerBackfill submits a historical sync through the engine. When the
// caller supplies no key, one is derived deterministically from the request
// so an accidental double-submission collapses onto a single run.
func (s *Service) TriggerBackfill(ctx context.Context, req BackfillRequest) (string, error) {
	if req.Cursor == "" && (req.From == 0 || req.To == 0) {
		return "", ErrInvalidRange
	}

	cfg, err := s.configs.GetByOrgAndProvider(req.OrganizationID, req.Provider)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return "", ErrConfigNotFound
	}

	key := req.IdempotencyKey
	if key == "" {
		if req.Cursor != "" {
			key = fmt.Sprintf("backfill:%s:%s:%s", req.Provider, req.OrganizationID, req.Cursor)
		} else {
			key = fmt.Sprintf("backfill:%s:%s:%d:%d", req.Provider, req.OrganizationID, req.From, req.To)
		}
	}

	cursor := req.Cursor
	if cursor == "" {
		cursor = fmt.Sprintf("range:%d:%d", req.From, req.To)
	}

	return s.engine.SyncIntegration(ctx, cfg, syncengine.SyncOptions{
		RunType:        models.RunTypeBackfill,
		IdempotencyKey: key,
		CursorOverride: cursor,
	})
}
