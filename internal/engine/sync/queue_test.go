package sync

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"syncline/internal/platform/models"
)

func TestHTTPQueue_SignedDelivery(t *testing.T) {
	var gotBody []byte
	var gotSig string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Syncline-Signature")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	queue := NewHTTPQueue(srv.URL, "topsecret", time.Second)
	err := queue.Add(context.Background(), "org-1", models.ProviderGong, records(models.ProviderGong, "r1", "r2"))
	require.NoError(t, err)

	// The receiver can recompute and verify the signature.
	want := GenerateHMAC("topsecret", gotBody)
	assert.True(t, hmac.Equal([]byte(want), []byte(gotSig)), "signature must verify against the body")

	var env queueEnvelope
	require.NoError(t, json.Unmarshal(gotBody, &env))
	assert.Equal(t, "org-1", env.OrganizationID)
	assert.Equal(t, models.ProviderGong, env.Provider)
	assert.Len(t, env.Records, 2)
}

func TestHTTPQueue_RejectionIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	queue := NewHTTPQueue(srv.URL, "s", time.Second)
	err := queue.Add(context.Background(), "org-1", models.ProviderGong, records(models.ProviderGong, "r1"))
	assert.ErrorContains(t, err, "503")
}

func TestHTTPQueue_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	queue := NewHTTPQueue(srv.URL, "s", time.Second)
	assert.NoError(t, queue.Ping(context.Background()))
}
