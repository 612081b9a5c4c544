package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apiContext "syncline/internal/api/context"
	"syncline/internal/platform/auth"
	"syncline/internal/platform/config"
	"syncline/internal/platform/repositories"
)

func TestAuthMiddleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	tokenSvc := auth.NewTokenService(config.JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: time.Hour,
	})
	apiKeys := repositories.NewAPIKeyRepository(db)
	mw := NewAuthMiddleware(tokenSvc, apiKeys)

	next := func(t *testing.T, wantUserID string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
			if !ok {
				t.Error("expected claims in context")
			} else if claims.UserID != wantUserID {
				t.Errorf("UserID = %s, want %s", claims.UserID, wantUserID)
			}
			w.WriteHeader(http.StatusOK)
		}
	}

	t.Run("Valid Bearer Token", func(t *testing.T) {
		token, err := tokenSvc.GenerateAccessToken("user_1", "org_1", "operator")
		if err != nil {
			t.Fatalf("generating token: %v", err)
		}

		req, _ := http.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rr := httptest.NewRecorder()
		mw.Handle(next(t, "user_1")).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
		}
	})

	t.Run("Missing Header", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/", nil)

		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		}).ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
		}
	})

	t.Run("Valid API Key", func(t *testing.T) {
		raw, hash, prefix, err := auth.GenerateAPIKey()
		if err != nil {
			t.Fatalf("generating key: %v", err)
		}

		rows := sqlmock.NewRows([]string{"id", "name", "key_hash", "key_prefix", "role", "created_at", "revoked_at"}).
			AddRow("key_1", "ci", hash, prefix, "operator", time.Now().Unix(), nil)
		mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_prefix = ?").
			WithArgs(prefix).
			WillReturnRows(rows)

		req, _ := http.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", raw)

		rr := httptest.NewRecorder()
		mw.Handle(next(t, "key:key_1")).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
		}
	})

	t.Run("Revoked API Key", func(t *testing.T) {
		raw, hash, prefix, err := auth.GenerateAPIKey()
		if err != nil {
			t.Fatalf("generating key: %v", err)
		}

		rows := sqlmock.NewRows([]string{"id", "name", "key_hash", "key_prefix", "role", "created_at", "revoked_at"}).
			AddRow("key_2", "old-ci", hash, prefix, "operator", time.Now().Unix(), time.Now().Unix())
		mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_prefix = ?").
			WithArgs(prefix).
			WillReturnRows(rows)

		req, _ := http.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", raw)

		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		}).ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
		}
	})

	t.Run("Unknown API Key", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_prefix = ?").
			WithArgs("slk_deadbeef").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "key_hash", "key_prefix", "role", "created_at", "revoked_at"}))

		req, _ := http.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", "slk_deadbeefcafe")

		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		}).ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 5; i++ {
		if !rl.Allow("ops-read:user_1", 5) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("ops-read:user_1", 5) {
		t.Error("sixth request should be rejected")
	}

	// Separate identities get separate buckets.
	if !rl.Allow("ops-read:user_2", 5) {
		t.Error("different identity should have its own bucket")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter()
	handler := rl.Limit("ops-write", 1)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req, _ := http.NewRequest("POST", "/", nil)
	ctx := context.WithValue(req.Context(), apiContext.Claims, &auth.Claims{UserID: "user_9"})
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
}
