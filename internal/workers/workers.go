package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	syncengine "syncline/internal/engine/sync"
	"syncline/internal/platform/models"
	"syncline/internal/platform/repositories"
)

// Syncer is the scheduler's entry point into the engine.
type Syncer interface {
	SyncIntegration(ctx context.Context, cfg *models.IntegrationConfig, opts syncengine.SyncOptions) (string, error)
}

// Scheduler submits SCHEDULED runs for every enabled integration on a fixed
// interval. The idempotency key buckets on the interval, so overlapping
// passes (or two scheduler replicas) collapse onto a single run per config.
type Scheduler struct {
	configs  *repositories.IntegrationConfigRepository
	engine   Syncer
	interval time.Duration
}

func NewScheduler(configs *repositories.IntegrationConfigRepository, engine Syncer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{configs: configs, engine: engine, interval: interval}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scheduling pass. Each config syncs in its own
// goroutine; organizations never block each other.
func (s *Scheduler) RunOnce(ctx context.Context) {
	configs, err := s.configs.ListEnabled()
	if err != nil {
		log.Error().Err(err).Msg("scheduler: listing enabled configs")
		return
	}

	now := time.Now()
	for _, cfg := range configs {
		cfg := cfg
		go func() {
			key := s.ScheduleKey(cfg.ID, now)
			_, err := s.engine.SyncIntegration(ctx, cfg, syncengine.SyncOptions{
				RunType:        models.RunTypeScheduled,
				IdempotencyKey: key,
			})
			switch {
			case err == nil:
			case errors.Is(err, syncengine.ErrRunInProgress):
				log.Debug().Str("config_id", cfg.ID).Msg("scheduler: run already in progress")
			default:
				// The engine already finalized the run; scheduled failures
				// surface through SLO metrics rather than alerting here.
				log.Warn().Err(err).Str("config_id", cfg.ID).Msg("scheduler: sync failed")
			}
		}()
	}
}

// ScheduleKey derives the interval-bucketed idempotency key for a config.
func (s *Scheduler) ScheduleKey(configID string, at time.Time) string {
	return fmt.Sprintf("scheduled:%s:%d", configID, at.Truncate(s.interval).Unix())
}

const orphanMessage = "orphaned by reconciliation sweep"

// Reconciler sweeps orphaned RUNNING runs. A crash between claiming a run
// and finalizing it leaves the row RUNNING forever; the sweep marks such
// rows FAILED once they exceed the cutoff age.
type Reconciler struct {
	ledger syncengine.RunLedger
	after  time.Duration
}

func NewReconciler(ledger syncengine.RunLedger, after time.Duration) *Reconciler {
	if after <= 0 {
		after = time.Hour
	}
	return &Reconciler{ledger: ledger, after: after}
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.after).Unix()
	n, err := r.ledger.FailOrphaned(ctx, cutoff, orphanMessage)
	if err != nil {
		log.Error().Err(err).Msg("reconciler: sweeping orphaned runs")
		return
	}
	if n > 0 {
		log.Warn().Int("count", n).Msg("reconciler: marked orphaned runs as failed")
	}
}
