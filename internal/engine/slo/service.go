package slo

import (
	"context"
	"time"

	syncengine "syncline/internal/engine/sync"
	"syncline/internal/platform/config"
	"syncline/internal/platform/models"
)

const (
	AlertWarn     = "WARN"
	AlertCritical = "CRITICAL"

	StatusHealthy  = "HEALTHY"
	StatusDegraded = "DEGRADED"
	StatusCritical = "CRITICAL"
)

// ConfigMetrics is the read surface onto integration configs the monitor
// needs. It never writes.
type ConfigMetrics interface {
	CountStale(olderThan int64) (int, error)
	CountDisabled() (int, error)
}

type Alert struct {
	Level     string  `json:"level"`
	Metric    string  `json:"metric"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

type SLOReport struct {
	WindowHours       int                                              `json:"window_hours"`
	TotalRuns         int                                              `json:"total_runs"`
	FailedRuns        int                                              `json:"failed_runs"`
	FailureRate       float64                                          `json:"failure_rate"`
	ByProvider        map[models.Provider]*syncengine.ProviderFailures `json:"by_provider"`
	StaleIntegrations int                                              `json:"stale_integrations"`
	Alerts            []Alert                                          `json:"alerts"`
}

type Check struct {
	Dependency string `json:"dependency"`
	Healthy    bool   `json:"healthy"`
	Detail     string `json:"detail,omitempty"`
}

type HealthReport struct {
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
	Checks    []Check `json:"checks"`
}

type PipelineReport struct {
	WindowHours      int                                   `json:"window_hours"`
	RunTypes         map[string]*syncengine.RunTypeSummary `json:"run_types"`
	PendingApprovals int                                   `json:"pending_approvals"`
	FailedBackfills  int                                   `json:"failed_backfills"`
}

// Service derives rolling-window reliability metrics from the run ledger and
// actively probes the engine's dependencies. Read-only: re-submission of
// work happens through the dead-letter manager, never here.
type Service struct {
	ledger   syncengine.RunLedger
	configs  ConfigMetrics
	queue    syncengine.ProcessingQueue
	registry *syncengine.Registry
	cfg      config.SLOConfig
}

func NewService(ledger syncengine.RunLedger, configs ConfigMetrics, queue syncengine.ProcessingQueue, registry *syncengine.Registry, cfg config.SLOConfig) *Service {
	return &Service{
		ledger:   ledger,
		configs:  configs,
		queue:    queue,
		registry: registry,
		cfg:      cfg,
	}
}

func (s *Service) QueueSLO(ctx context.Context, windowHours int) (*SLOReport, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour).Unix()

	stats, err := s.ledger.WindowStats(ctx, since)
	if err != nil {
		return nil, err
	}

	staleCutoff := time.Now().Add(-s.cfg.StaleAfter).Unix()
	stale, err := s.configs.CountStale(staleCutoff)
	if err != nil {
		return nil, err
	}

	report := &SLOReport{
		WindowHours:       windowHours,
		TotalRuns:         stats.TotalRuns,
		FailedRuns:        stats.FailedRuns,
		ByProvider:        stats.ByProvider,
		StaleIntegrations: stale,
	}
	if stats.TotalRuns > 0 {
		report.FailureRate = float64(stats.FailedRuns) / float64(stats.TotalRuns)
	}

	report.Alerts = s.evaluateAlerts(report)
	return report, nil
}

func (s *Service) evaluateAlerts(r *SLOReport) []Alert {
	alerts := []Alert{}

	switch {
	case s.cfg.CriticalFailureRate > 0 && r.FailureRate > s.cfg.CriticalFailureRate:
		alerts = append(alerts, Alert{
			Level:     AlertCritical,
			Metric:    "failure_rate",
			Message:   "sync failure rate above critical threshold",
			Value:     r.FailureRate,
			Threshold: s.cfg.CriticalFailureRate,
		})
	case s.cfg.WarnFailureRate > 0 && r.FailureRate > s.cfg.WarnFailureRate:
		alerts = append(alerts, Alert{
			Level:     AlertWarn,
			Metric:    "failure_rate",
			Message:   "sync failure rate above warning threshold",
			Value:     r.FailureRate,
			Threshold: s.cfg.WarnFailureRate,
		})
	}

	switch {
	case s.cfg.CriticalStaleCount > 0 && r.StaleIntegrations >= s.cfg.CriticalStaleCount:
		alerts = append(alerts, Alert{
			Level:     AlertCritical,
			Metric:    "stale_integrations",
			Message:   "stale integration count above critical threshold",
			Value:     float64(r.StaleIntegrations),
			Threshold: float64(s.cfg.CriticalStaleCount),
		})
	case s.cfg.WarnStaleCount > 0 && r.StaleIntegrations >= s.cfg.WarnStaleCount:
		alerts = append(alerts, Alert{
			Level:     AlertWarn,
			Metric:    "stale_integrations",
			Message:   "stale integration count above warning threshold",
			Value:     float64(r.StaleIntegrations),
			Threshold: float64(s.cfg.WarnStaleCount),
		})
	}

	return alerts
}

// SyntheticHealth probes every critical dependency: each registered provider,
// the run-ledger store and the processing queue. Ledger or queue failure is
// CRITICAL outright; provider failures degrade, and losing all providers is
// CRITICAL too.
func (s *Service) SyntheticHealth(ctx context.Context) *HealthReport {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	report := &HealthReport{Timestamp: time.Now().Unix()}

	coreFailed := false
	report.Checks = append(report.Checks, s.runProbe("run_ledger", func() error { return s.ledger.Ping(probeCtx) }, &coreFailed))
	report.Checks = append(report.Checks, s.runProbe("processing_queue", func() error { return s.queue.Ping(probeCtx) }, &coreFailed))

	providerTotal := 0
	providerFailed := 0
	for _, adapter := range s.registry.All() {
		providerTotal++
		check := s.runProbe("provider:"+string(adapter.Provider()), func() error { return adapter.Ping(probeCtx) }, nil)
		if !check.Healthy {
			providerFailed++
		}
		report.Checks = append(report.Checks, check)
	}

	switch {
	case coreFailed:
		report.Status = StatusCritical
	case providerTotal > 0 && providerFailed == providerTotal:
		report.Status = StatusCritical
	case providerFailed > 0:
		report.Status = StatusDegraded
	default:
		report.Status = StatusHealthy
	}

	return report
}

func (s *Service) runProbe(name string, probe func() error, coreFailed *bool) Check {
	if err := probe(); err != nil {
		if coreFailed != nil {
			*coreFailed = true
		}
		return Check{Dependency: name, Healthy: false, Detail: err.Error()}
	}
	return Check{Dependency: name, Healthy: true}
}

// PipelineStatus rolls run counts up by run type for operator dashboards.
// MANUAL and SCHEDULED runs are reported together as "sync".
func (s *Service) PipelineStatus(ctx context.Context, windowHours int) (*PipelineReport, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour).Unix()

	byType, err := s.ledger.TypeSummary(ctx, since)
	if err != nil {
		return nil, err
	}

	report := &PipelineReport{
		WindowHours: windowHours,
		RunTypes: map[string]*syncengine.RunTypeSummary{
			"sync":     {},
			"backfill": {},
			"replay":   {},
		},
	}

	for runType, summary := range byType {
		var bucket *syncengine.RunTypeSummary
		switch runType {
		case models.RunTypeBackfill:
			bucket = report.RunTypes["backfill"]
		case models.RunTypeReplay:
			bucket = report.RunTypes["replay"]
		default:
			bucket = report.RunTypes["sync"]
		}
		bucket.Total += summary.Total
		bucket.Completed += summary.Completed
		bucket.Failed += summary.Failed
		bucket.Running += summary.Running
		bucket.Processed += summary.Processed
		bucket.Successes += summary.Successes
		bucket.Failures += summary.Failures
	}

	pending, err := s.configs.CountDisabled()
	if err != nil {
		return nil, err
	}
	report.PendingApprovals = pending

	failedBackfills, err := s.ledger.CountFailedBackfills(ctx, since)
	if err != nil {
		return nil, err
	}
	report.FailedBackfills = failedBackfills

	return report, nil
}
