package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"syncline/internal/platform/models"
)

// fakeLedger is the in-memory run ledger the engine tests run against.
type fakeLedger struct {
	byKey map[string]*models.IntegrationRun
	byID  map[string]*models.IntegrationRun
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		byKey: make(map[string]*models.IntegrationRun),
		byID:  make(map[string]*models.IntegrationRun),
	}
}

func (l *fakeLedger) seed(run *models.IntegrationRun) {
	l.byKey[run.IdempotencyKey] = run
	l.byID[run.ID] = run
}

func (l *fakeLedger) InsertIfAbsent(ctx context.Context, run *models.IntegrationRun) (*models.IntegrationRun, bool, error) {
	if existing, ok := l.byKey[run.IdempotencyKey]; ok {
		return existing, false, nil
	}
	cp := *run
	l.seed(&cp)
	return &cp, true, nil
}

func (l *fakeLedger) FindByIdempotencyKey(ctx context.Context, key string) (*models.IntegrationRun, error) {
	return l.byKey[key], nil
}

func (l *fakeLedger) GetByID(ctx context.Context, id string) (*models.IntegrationRun, error) {
	return l.byID[id], nil
}

func (l *fakeLedger) MarkCompleted(ctx context.Context, id string, finishedAt int64, processed, successes, failures int) error {
	run := l.byID[id]
	if run == nil || run.Status != models.RunRunning {
		return nil
	}
	run.Status = models.RunCompleted
	run.FinishedAt = &finishedAt
	run.ProcessedCount = processed
	run.SuccessCount = successes
	run.FailureCount = failures
	return nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, id string, finishedAt int64, failures int, errMsg string) error {
	run := l.byID[id]
	if run == nil || run.Status != models.RunRunning {
		return nil
	}
	run.Status = models.RunFailed
	run.FinishedAt = &finishedAt
	run.FailureCount = failures
	run.ErrorMessage = errMsg
	return nil
}

func (l *fakeLedger) ListFailed(ctx context.Context, provider models.Provider, limit int) ([]*models.IntegrationRun, error) {
	return nil, nil
}
func (l *fakeLedger) CountFailed(ctx context.Context, provider models.Provider) (int, error) {
	return 0, nil
}
func (l *fakeLedger) ListBackfills(ctx context.Context, provider models.Provider, limit int) ([]*models.IntegrationRun, error) {
	return nil, nil
}
func (l *fakeLedger) WindowStats(ctx context.Context, since int64) (*WindowStats, error) {
	return nil, nil
}
func (l *fakeLedger) TypeSummary(ctx context.Context, since int64) (map[models.RunType]*RunTypeSummary, error) {
	return nil, nil
}
func (l *fakeLedger) CountFailedBackfills(ctx context.Context, since int64) (int, error) {
	return 0, nil
}
func (l *fakeLedger) FailOrphaned(ctx context.Context, startedBefore int64, message string) (int, error) {
	return 0, nil
}
func (l *fakeLedger) Ping(ctx context.Context) error { return nil }

type fakeConfigStore struct {
	successes []string
	failures  []string
	cursor    string
	syncedAt  int64
}

func (s *fakeConfigStore) RecordSyncSuccess(id, cursor string, syncedAt int64) error {
	s.successes = append(s.successes, id)
	s.cursor = cursor
	s.syncedAt = syncedAt
	return nil
}

func (s *fakeConfigStore) RecordSyncFailure(id, errMsg string) error {
	s.failures = append(s.failures, id)
	return nil
}

// scriptedAdapter serves a fixed sequence of pages, or fails every call.
type scriptedAdapter struct {
	provider models.Provider
	pages    []*Page
	err      error
	calls    int
}

func (a *scriptedAdapter) Provider() models.Provider { return a.provider }

func (a *scriptedAdapter) Fetch(ctx context.Context, creds json.RawMessage, cursor string) (*Page, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if len(a.pages) == 0 {
		return &Page{}, nil
	}
	page := a.pages[0]
	a.pages = a.pages[1:]
	return page, nil
}

func (a *scriptedAdapter) Ping(ctx context.Context) error { return nil }

func records(provider models.Provider, ids ...string) []models.Record {
	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Record{ID: id, Kind: "call_recording", Provider: provider, Payload: json.RawMessage(`{}`)})
	}
	return out
}

func testConfig() *models.IntegrationConfig {
	return &models.IntegrationConfig{
		ID:             "cfg-1",
		OrganizationID: "org-1",
		Provider:       models.ProviderGong,
		Enabled:        true,
		Credentials:    json.RawMessage(`{"api_key":"k"}`),
		SyncCursor:     "cur-0",
		Status:         models.IntegrationActive,
	}
}

func newTestEngine(ledger RunLedger, configs ConfigStore, adapter Adapter, queue ProcessingQueue, attempts int) *Engine {
	return NewEngine(ledger, configs, NewRegistry(adapter), queue, Options{
		Retry: Policy{Attempts: attempts, BaseDelay: 1},
		Clock: newTestClock(),
	})
}

func TestSyncIntegration_CompletedKeyIsFreeNoOp(t *testing.T) {
	ledger := newFakeLedger()
	ledger.seed(&models.IntegrationRun{
		ID:             "run-existing",
		IdempotencyKey: "manual:cfg-1:abc",
		Status:         models.RunCompleted,
	})
	adapter := &scriptedAdapter{provider: models.ProviderGong}
	configs := &fakeConfigStore{}
	engine := newTestEngine(ledger, configs, adapter, NewMemoryQueue(), 3)

	runID, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{
		RunType:        models.RunTypeManual,
		IdempotencyKey: "manual:cfg-1:abc",
	})

	require.NoError(t, err)
	assert.Equal(t, "run-existing", runID)
	assert.Zero(t, adapter.calls, "provider must not be invoked for a completed key")
	assert.Empty(t, configs.successes, "config must not be touched")
	assert.Len(t, ledger.byID, 1, "no new run created")
}

func TestSyncIntegration_RunningKeyRejected(t *testing.T) {
	ledger := newFakeLedger()
	ledger.seed(&models.IntegrationRun{
		ID:             "run-live",
		IdempotencyKey: "manual:cfg-1:abc",
		Status:         models.RunRunning,
	})
	adapter := &scriptedAdapter{provider: models.ProviderGong}
	engine := newTestEngine(ledger, &fakeConfigStore{}, adapter, NewMemoryQueue(), 3)

	runID, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{
		IdempotencyKey: "manual:cfg-1:abc",
	})

	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, "run-live", runID)
	assert.Zero(t, adapter.calls)
}

func TestSyncIntegration_FailedKeyRequiresFreshKey(t *testing.T) {
	ledger := newFakeLedger()
	ledger.seed(&models.IntegrationRun{
		ID:             "run-dead",
		IdempotencyKey: "manual:cfg-1:abc",
		Status:         models.RunFailed,
	})
	adapter := &scriptedAdapter{provider: models.ProviderGong}
	engine := newTestEngine(ledger, &fakeConfigStore{}, adapter, NewMemoryQueue(), 3)

	runID, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{
		IdempotencyKey: "manual:cfg-1:abc",
	})

	assert.ErrorIs(t, err, ErrRunAlreadyFailed)
	assert.Equal(t, "run-dead", runID)
	assert.Zero(t, adapter.calls)
}

func TestSyncIntegration_SuccessAdvancesCursor(t *testing.T) {
	ledger := newFakeLedger()
	adapter := &scriptedAdapter{
		provider: models.ProviderGong,
		pages: []*Page{
			{Records: records(models.ProviderGong, "r1", "r2"), NextCursor: "cur-1"},
			{Records: records(models.ProviderGong, "r3"), NextCursor: ""},
		},
	}
	configs := &fakeConfigStore{}
	queue := NewMemoryQueue()
	engine := newTestEngine(ledger, configs, adapter, queue, 3)

	runID, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{
		RunType:        models.RunTypeManual,
		IdempotencyKey: "manual:cfg-1:xyz",
	})

	require.NoError(t, err)
	run := ledger.byID[runID]
	require.NotNil(t, run)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 3, run.ProcessedCount)
	assert.Equal(t, 3, run.SuccessCount)
	assert.NotNil(t, run.FinishedAt)

	assert.Equal(t, []string{"cfg-1"}, configs.successes)
	assert.Equal(t, "cur-1", configs.cursor, "live cursor advanced to last page cursor")
	assert.Len(t, queue.Records(), 3)
	assert.Equal(t, 2, adapter.calls)
}

func TestSyncIntegration_ProviderOutageExhaustsRetries(t *testing.T) {
	ledger := newFakeLedger()
	adapter := &scriptedAdapter{
		provider: models.ProviderGong,
		err:      errors.New("provider outage"),
	}
	configs := &fakeConfigStore{}
	engine := newTestEngine(ledger, configs, adapter, NewMemoryQueue(), 4)

	runID, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{
		RunType:        models.RunTypeManual,
		IdempotencyKey: "manual:cfg-1:outage",
	})

	require.Error(t, err)
	assert.Equal(t, "provider outage", err.Error(), "last error rethrown verbatim")
	assert.Equal(t, 4, adapter.calls, "attempts=4 means exactly 4 invocations")

	run := ledger.byID[runID]
	require.NotNil(t, run)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Equal(t, "provider outage", run.ErrorMessage)
	assert.Equal(t, 4, run.FailureCount)
	assert.Equal(t, []string{"cfg-1"}, configs.failures, "config downgraded on failure")
}

func TestSyncIntegration_QueueFailureFailsRun(t *testing.T) {
	ledger := newFakeLedger()
	adapter := &scriptedAdapter{
		provider: models.ProviderGong,
		pages:    []*Page{{Records: records(models.ProviderGong, "r1")}},
	}
	configs := &fakeConfigStore{}
	engine := NewEngine(ledger, configs, NewRegistry(adapter), failingQueue{}, Options{
		Retry: Policy{Attempts: 2, BaseDelay: 1},
		Clock: newTestClock(),
	})

	runID, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{
		IdempotencyKey: "manual:cfg-1:q",
	})

	require.Error(t, err)
	run := ledger.byID[runID]
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "queue down")
}

type failingQueue struct{}

func (failingQueue) Add(ctx context.Context, orgID string, provider models.Provider, records []models.Record) error {
	return errors.New("queue down")
}
func (failingQueue) Ping(ctx context.Context) error { return errors.New("queue down") }

func TestSyncIntegration_UnknownProviderFailsRun(t *testing.T) {
	ledger := newFakeLedger()
	configs := &fakeConfigStore{}
	engine := NewEngine(ledger, configs, NewRegistry(), NewMemoryQueue(), Options{Clock: newTestClock()})

	cfg := testConfig()
	cfg.Provider = models.Provider("pipedrive")

	runID, err := engine.SyncIntegration(context.Background(), cfg, SyncOptions{
		IdempotencyKey: "manual:cfg-1:unknown",
	})

	assert.ErrorIs(t, err, ErrUnknownProvider)
	run := ledger.byID[runID]
	require.NotNil(t, run)
	assert.Equal(t, models.RunFailed, run.Status)
}

func TestSyncIntegration_DisabledConfigRefusedBeforeRunCreation(t *testing.T) {
	ledger := newFakeLedger()
	engine := newTestEngine(ledger, &fakeConfigStore{}, &scriptedAdapter{provider: models.ProviderGong}, NewMemoryQueue(), 3)

	cfg := testConfig()
	cfg.Enabled = false

	_, err := engine.SyncIntegration(context.Background(), cfg, SyncOptions{
		IdempotencyKey: "manual:cfg-1:disabled",
	})

	assert.ErrorIs(t, err, ErrConfigDisabled)
	assert.Empty(t, ledger.byID, "no run row for a refused submission")
}

func TestSyncIntegration_MissingKeyRejected(t *testing.T) {
	engine := newTestEngine(newFakeLedger(), &fakeConfigStore{}, &scriptedAdapter{provider: models.ProviderGong}, NewMemoryQueue(), 3)

	_, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{})
	assert.ErrorIs(t, err, ErrMissingIdempotency)
}

func TestSyncIntegration_CursorOverrideLeavesLiveCursor(t *testing.T) {
	ledger := newFakeLedger()
	adapter := &scriptedAdapter{
		provider: models.ProviderGong,
		pages:    []*Page{{Records: records(models.ProviderGong, "old1"), NextCursor: ""}},
	}
	configs := &fakeConfigStore{}
	engine := newTestEngine(ledger, configs, adapter, NewMemoryQueue(), 3)

	_, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{
		RunType:        models.RunTypeBackfill,
		IdempotencyKey: "backfill:gong:org-1:jan",
		CursorOverride: "range:1704067200:1706745600",
	})

	require.NoError(t, err)
	assert.Equal(t, "cur-0", configs.cursor, "backfill must not move the live cursor")
}

func TestSyncIntegration_MaxPagesBoundsFetchLoop(t *testing.T) {
	ledger := newFakeLedger()
	// Every page points to a new cursor so the loop would run forever
	// without the bound.
	pages := make([]*Page, 10)
	for i := range pages {
		pages[i] = &Page{
			Records:    records(models.ProviderGong, fmt.Sprintf("r%d", i)),
			NextCursor: fmt.Sprintf("cur-%d", i+1),
		}
	}
	adapter := &scriptedAdapter{provider: models.ProviderGong, pages: pages}
	engine := NewEngine(ledger, &fakeConfigStore{}, NewRegistry(adapter), NewMemoryQueue(), Options{
		Retry:    Policy{Attempts: 1, BaseDelay: 1},
		MaxPages: 3,
		Clock:    newTestClock(),
	})

	_, err := engine.SyncIntegration(context.Background(), testConfig(), SyncOptions{
		IdempotencyKey: "manual:cfg-1:pages",
	})

	require.NoError(t, err)
	assert.Equal(t, 3, adapter.calls)
}
