package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	_ "github.com/mattn/go-sqlite3"
	apiContext "syncline/internal/api/context"
	"syncline/internal/engine/deadletter"
	"syncline/internal/engine/slo"
	syncengine "syncline/internal/engine/sync"
	"syncline/internal/platform/config"
	"syncline/internal/platform/database"
	"syncline/internal/platform/models"
	"syncline/internal/platform/repositories"
)

func testLedger(t *testing.T) (*syncengine.SQLLedger, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return syncengine.NewSQLLedger(db), db
}

// acceptingSyncer records submissions and always succeeds.
type acceptingSyncer struct {
	lastOpts syncengine.SyncOptions
}

func (s *acceptingSyncer) SyncIntegration(ctx context.Context, cfg *models.IntegrationConfig, opts syncengine.SyncOptions) (string, error) {
	s.lastOpts = opts
	return "run_new", nil
}

func withParams(r *http.Request, name, value string) *http.Request {
	ps := httprouter.Params{{Key: name, Value: value}}
	return r.WithContext(context.WithValue(r.Context(), apiContext.Params, ps))
}

func insertRun(t *testing.T, ledger *syncengine.SQLLedger, run *models.IntegrationRun) {
	t.Helper()
	if _, inserted, err := ledger.InsertIfAbsent(context.Background(), run); err != nil || !inserted {
		t.Fatalf("inserting run: inserted=%v err=%v", inserted, err)
	}
}

func TestReplayEndpoint(t *testing.T) {
	ledger, db := testLedger(t)
	configs := repositories.NewIntegrationConfigRepository(db)
	syncer := &acceptingSyncer{}
	handler := NewOpsHandler(deadletter.NewService(ledger, configs, syncer))

	cfg := &models.IntegrationConfig{OrganizationID: "org-1", Provider: models.ProviderGong, Enabled: true}
	if err := configs.Create(cfg); err != nil {
		t.Fatalf("creating config: %v", err)
	}

	failed := &models.IntegrationRun{
		ID:             "run_failed",
		OrganizationID: "org-1",
		Provider:       models.ProviderGong,
		RunType:        models.RunTypeManual,
		IdempotencyKey: "manual:cfg:abc",
		Status:         models.RunRunning,
		StartedAt:      1000,
	}
	insertRun(t, ledger, failed)
	if err := ledger.MarkFailed(context.Background(), "run_failed", 1100, 3, "provider outage"); err != nil {
		t.Fatalf("marking failed: %v", err)
	}

	completed := &models.IntegrationRun{
		ID:             "run_done",
		OrganizationID: "org-1",
		Provider:       models.ProviderGong,
		RunType:        models.RunTypeManual,
		IdempotencyKey: "manual:cfg:def",
		Status:         models.RunRunning,
		StartedAt:      1000,
	}
	insertRun(t, ledger, completed)
	if err := ledger.MarkCompleted(context.Background(), "run_done", 1100, 10, 10, 0); err != nil {
		t.Fatalf("marking completed: %v", err)
	}

	t.Run("replays failed run", func(t *testing.T) {
		req := withParams(httptest.NewRequest("POST", "/", nil), "run_id", "run_failed")
		rr := httptest.NewRecorder()
		handler.Replay(rr, req)

		if rr.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body)
		}
		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["run_id"] != "run_new" {
			t.Errorf("run_id = %s, want run_new", resp["run_id"])
		}
		if syncer.lastOpts.RunType != models.RunTypeReplay {
			t.Errorf("run type = %s, want REPLAY", syncer.lastOpts.RunType)
		}
	})

	t.Run("rejects completed run", func(t *testing.T) {
		req := withParams(httptest.NewRequest("POST", "/", nil), "run_id", "run_done")
		rr := httptest.NewRecorder()
		handler.Replay(rr, req)

		if rr.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusConflict)
		}
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		req := withParams(httptest.NewRequest("POST", "/", nil), "run_id", "run_missing")
		rr := httptest.NewRecorder()
		handler.Replay(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
		}
	})

	t.Run("lists dead letters", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?provider=gong", nil)
		rr := httptest.NewRecorder()
		handler.ListDeadLetters(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
		}
		var list deadletter.DeadLetterList
		json.Unmarshal(rr.Body.Bytes(), &list)
		if list.TotalFailed != 1 {
			t.Errorf("total_failed = %d, want 1", list.TotalFailed)
		}
	})
}

func TestBackfillEndpointValidation(t *testing.T) {
	ledger, db := testLedger(t)
	configs := repositories.NewIntegrationConfigRepository(db)
	handler := NewOpsHandler(deadletter.NewService(ledger, configs, &acceptingSyncer{}))

	t.Run("missing range is 400", func(t *testing.T) {
		body := `{"organization_id":"org-1","provider":"gong"}`
		req := httptest.NewRequest("POST", "/", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.TriggerBackfill(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown config is 404", func(t *testing.T) {
		body := `{"organization_id":"org-1","provider":"gong","from":1704067200,"to":1706745600}`
		req := httptest.NewRequest("POST", "/", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.TriggerBackfill(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	ledger, db := testLedger(t)
	configs := repositories.NewIntegrationConfigRepository(db)
	monitor := slo.NewService(ledger, configs, syncengine.NewMemoryQueue(), syncengine.NewRegistry(), config.SLOConfig{})
	handler := NewHealthHandler(monitor)

	rr := httptest.NewRecorder()
	handler.Check(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var report slo.HealthReport
	json.Unmarshal(rr.Body.Bytes(), &report)
	if report.Status != slo.StatusHealthy {
		t.Errorf("status = %s, want HEALTHY", report.Status)
	}

	// Losing the ledger store is critical: probe fails, endpoint goes 503.
	db.Close()
	rr = httptest.NewRecorder()
	handler.Check(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
