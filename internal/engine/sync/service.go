package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"syncline/internal/platform/models"
)

var (
	// ErrRunInProgress means another submission under the same idempotency
	// key is still RUNNING. The caller may retry once it is terminal.
	ErrRunInProgress = errors.New("run already in progress for idempotency key")

	// ErrRunAlreadyFailed means the key is bound to a terminal FAILED run.
	// Replaying failed work requires a freshly derived key.
	ErrRunAlreadyFailed = errors.New("idempotency key bound to a failed run")

	ErrUnknownProvider    = errors.New("unknown provider")
	ErrConfigDisabled     = errors.New("integration is disabled")
	ErrMissingIdempotency = errors.New("idempotency key required")
)

// ConfigStore is the engine's write surface onto integration configs.
// Operator CRUD lives elsewhere; the engine only records run outcomes.
type ConfigStore interface {
	RecordSyncSuccess(id, cursor string, syncedAt int64) error
	RecordSyncFailure(id, errMsg string) error
}

// ProcessingQueue is the downstream hand-off for fetched records.
type ProcessingQueue interface {
	Add(ctx context.Context, orgID string, provider models.Provider, records []models.Record) error
	Ping(ctx context.Context) error
}

// SyncOptions parameterize one logical sync operation.
type SyncOptions struct {
	RunType        models.RunType
	IdempotencyKey string

	// CursorOverride makes the run start from an explicit cursor (backfills)
	// instead of the config's live cursor. When set, the live cursor is left
	// untouched on completion.
	CursorOverride string
}

// Options bound the engine's fetch loop and retry behavior.
type Options struct {
	Retry           Policy
	MaxPages        int
	ProviderTimeout time.Duration
	Clock           Clock
}

// Engine orchestrates sync runs: it claims the idempotency key against the
// run ledger, drives the provider adapter through the retry executor, hands
// records to the processing queue and finalizes the run. All side effects
// are confined to the ledger, the config store and the queue hand-off.
type Engine struct {
	ledger   RunLedger
	configs  ConfigStore
	registry *Registry
	queue    ProcessingQueue
	opts     Options
}

func NewEngine(ledger RunLedger, configs ConfigStore, registry *Registry, queue ProcessingQueue, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = 1
	}
	return &Engine{
		ledger:   ledger,
		configs:  configs,
		registry: registry,
		queue:    queue,
		opts:     opts,
	}
}

// SyncIntegration executes one idempotent sync run for the config and
// returns the run id. A duplicate submission of a COMPLETED key returns the
// existing run id without touching the provider.
func (e *Engine) SyncIntegration(ctx context.Context, cfg *models.IntegrationConfig, opts SyncOptions) (string, error) {
	if opts.IdempotencyKey == "" {
		return "", ErrMissingIdempotency
	}
	if opts.RunType == "" {
		opts.RunType = models.RunTypeManual
	}
	if !cfg.Enabled {
		return "", ErrConfigDisabled
	}

	now := e.opts.Clock.Now().Unix()
	candidate := &models.IntegrationRun{
		ID:             "run_" + uuid.New().String(),
		OrganizationID: cfg.OrganizationID,
		Provider:       cfg.Provider,
		RunType:        opts.RunType,
		IdempotencyKey: opts.IdempotencyKey,
		Status:         models.RunRunning,
		StartedAt:      now,
	}

	run, inserted, err := e.ledger.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return "", err
	}
	if !inserted {
		switch run.Status {
		case models.RunCompleted:
			log.Debug().
				Str("run_id", run.ID).
				Str("idempotency_key", opts.IdempotencyKey).
				Msg("duplicate submission, returning completed run")
			return run.ID, nil
		case models.RunRunning:
			return run.ID, ErrRunInProgress
		default:
			return run.ID, ErrRunAlreadyFailed
		}
	}

	log.Info().
		Str("run_id", run.ID).
		Str("org_id", cfg.OrganizationID).
		Str("provider", string(cfg.Provider)).
		Str("run_type", string(opts.RunType)).
		Msg("sync run started")

	adapter, err := e.registry.Resolve(cfg.Provider)
	if err != nil {
		e.finalizeFailed(ctx, run.ID, cfg, 0, err)
		return run.ID, err
	}

	cursor := cfg.SyncCursor
	if opts.CursorOverride != "" {
		cursor = opts.CursorOverride
	}

	processed := 0
	failedAttempts := 0

	for page := 0; page < e.opts.MaxPages; page++ {
		var fetched *Page
		err := WithRetry(ctx, e.opts.Clock, e.opts.Retry, func(ctx context.Context) error {
			fctx := ctx
			if e.opts.ProviderTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, e.opts.ProviderTimeout)
				defer cancel()
			}
			p, ferr := adapter.Fetch(fctx, cfg.Credentials, cursor)
			if ferr != nil {
				failedAttempts++
				return ferr
			}
			fetched = p
			return nil
		})
		if err != nil {
			e.finalizeFailed(ctx, run.ID, cfg, failedAttempts, err)
			return run.ID, err
		}

		if len(fetched.Records) > 0 {
			if qerr := e.queue.Add(ctx, cfg.OrganizationID, cfg.Provider, fetched.Records); qerr != nil {
				// Queue failure is an infrastructure error, never swallowed.
				e.finalizeFailed(ctx, run.ID, cfg, failedAttempts, qerr)
				return run.ID, qerr
			}
			processed += len(fetched.Records)
		}

		if fetched.NextCursor == "" || fetched.NextCursor == cursor {
			break
		}
		cursor = fetched.NextCursor
	}

	finishedAt := e.opts.Clock.Now().Unix()
	if err := e.ledger.MarkCompleted(ctx, run.ID, finishedAt, processed, processed, failedAttempts); err != nil {
		return run.ID, err
	}

	liveCursor := cursor
	if opts.CursorOverride != "" {
		liveCursor = cfg.SyncCursor
	}
	if err := e.configs.RecordSyncSuccess(cfg.ID, liveCursor, finishedAt); err != nil {
		return run.ID, err
	}

	log.Info().
		Str("run_id", run.ID).
		Str("provider", string(cfg.Provider)).
		Int("processed", processed).
		Msg("sync run completed")

	return run.ID, nil
}

func (e *Engine) finalizeFailed(ctx context.Context, runID string, cfg *models.IntegrationConfig, failedAttempts int, cause error) {
	finishedAt := e.opts.Clock.Now().Unix()
	failures := failedAttempts
	if failures == 0 {
		failures = 1
	}

	if err := e.ledger.MarkFailed(ctx, runID, finishedAt, failures, cause.Error()); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("failed to finalize run")
	}
	if err := e.configs.RecordSyncFailure(cfg.ID, cause.Error()); err != nil {
		log.Error().Err(err).Str("config_id", cfg.ID).Msg("failed to downgrade config status")
	}

	log.Warn().
		Str("run_id", runID).
		Str("provider", string(cfg.Provider)).
		Int("failed_attempts", failedAttempts).
		Str("error", cause.Error()).
		Msg("sync run failed")
}
