package sync

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"syncline/internal/platform/models"
)

// queueEnvelope is the payload shape the processing queue ingests.
type queueEnvelope struct {
	OrganizationID string          `json:"organization_id"`
	Provider       models.Provider `json:"provider"`
	Records        []models.Record `json:"records"`
	EnqueuedAt     int64           `json:"enqueued_at"`
}

// HTTPQueue hands fetched records to the downstream processing queue over
// HTTP. Deliveries are signed so the receiver can verify origin.
type HTTPQueue struct {
	url    string
	secret string
	client *http.Client
}

func NewHTTPQueue(url, secret string, timeout time.Duration) *HTTPQueue {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPQueue{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

func (q *HTTPQueue) Add(ctx context.Context, orgID string, provider models.Provider, records []models.Record) error {
	payload, err := json.Marshal(queueEnvelope{
		OrganizationID: orgID,
		Provider:       provider,
		Records:        records,
		EnqueuedAt:     time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Syncline-Signature", GenerateHMAC(q.secret, payload))

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("processing queue returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (q *HTTPQueue) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, q.url, nil)
	if err != nil {
		return err
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("processing queue returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func GenerateHMAC(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryQueue buffers hand-offs in memory. Used in tests and the worker's
// dry mode.
type MemoryQueue struct {
	mu      sync.Mutex
	batches []queueEnvelope
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Add(ctx context.Context, orgID string, provider models.Provider, records []models.Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches = append(q.batches, queueEnvelope{
		OrganizationID: orgID,
		Provider:       provider,
		Records:        records,
		EnqueuedAt:     time.Now().Unix(),
	})
	return nil
}

func (q *MemoryQueue) Ping(ctx context.Context) error { return nil }

// Len returns the number of batches handed off so far.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// Records flattens every batch into one slice.
func (q *MemoryQueue) Records() []models.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.Record
	for _, b := range q.batches {
		out = append(out, b.Records...)
	}
	return out
}
