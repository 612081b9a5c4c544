package models

import "encoding/json"

// Provider identifies an external system we sync from.
type Provider string

const (
	ProviderGong       Provider = "gong"
	ProviderFireflies  Provider = "fireflies"
	ProviderHubspot    Provider = "hubspot"
	ProviderSalesforce Provider = "salesforce"
)

// CallRecordingProviders and CRMProviders partition the known providers.
var (
	CallRecordingProviders = []Provider{ProviderGong, ProviderFireflies}
	CRMProviders           = []Provider{ProviderHubspot, ProviderSalesforce}
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderGong, ProviderFireflies, ProviderHubspot, ProviderSalesforce:
		return true
	}
	return false
}

// IsCRM reports whether the provider is a CRM rather than a call recorder.
func (p Provider) IsCRM() bool {
	return p == ProviderHubspot || p == ProviderSalesforce
}

// IntegrationStatus is the operational state of a configured integration.
type IntegrationStatus string

const (
	IntegrationActive   IntegrationStatus = "ACTIVE"
	IntegrationDegraded IntegrationStatus = "DEGRADED"
	IntegrationFailed   IntegrationStatus = "FAILED"
	IntegrationDisabled IntegrationStatus = "DISABLED"
)

// RunType classifies why a sync run was started.
type RunType string

const (
	RunTypeManual    RunType = "MANUAL"
	RunTypeScheduled RunType = "SCHEDULED"
	RunTypeBackfill  RunType = "BACKFILL"
	RunTypeReplay    RunType = "REPLAY"
)

// RunStatus is the lifecycle state of a run. COMPLETED and FAILED are
// terminal; a run never leaves a terminal state.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// IntegrationConfig is the per-organization, per-provider configuration.
// Operators create and edit it; the sync engine mutates cursor, status and
// last-sync bookkeeping after every run.
type IntegrationConfig struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	Provider       Provider          `json:"provider"`
	Enabled        bool              `json:"enabled"`
	Credentials    json.RawMessage   `json:"-"`
	Settings       json.RawMessage   `json:"settings,omitempty"`
	SyncCursor     string            `json:"sync_cursor,omitempty"`
	WebhookSecret  string            `json:"-"`
	Status         IntegrationStatus `json:"status"`
	LastSyncAt     *int64            `json:"last_sync_at,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
	CreatedAt      int64             `json:"created_at"`
	UpdatedAt      int64             `json:"updated_at"`
}

// IntegrationRun is one sync attempt. Rows are append-only once terminal:
// retries of failed work are new runs under a freshly derived idempotency
// key, never a revival of the old row.
type IntegrationRun struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Provider       Provider  `json:"provider"`
	RunType        RunType   `json:"run_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	Status         RunStatus `json:"status"`
	StartedAt      int64     `json:"started_at"`
	FinishedAt     *int64    `json:"finished_at,omitempty"`
	ProcessedCount int       `json:"processed_count"`
	SuccessCount   int       `json:"success_count"`
	FailureCount   int       `json:"failure_count"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Record is one fetched provider record handed to the processing queue.
// The payload is opaque to the engine.
type Record struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Provider Provider        `json:"provider"`
	Payload  json.RawMessage `json:"payload"`
}
