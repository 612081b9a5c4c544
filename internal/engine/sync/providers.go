package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"syncline/internal/platform/config"
	"syncline/internal/platform/models"
)

// providerCredentials is the shape every adapter expects inside the opaque
// credentials blob. Providers that use OAuth put the access token in
// api_key.
type providerCredentials struct {
	APIKey string `json:"api_key"`
}

// httpAdapter is the shared fetch implementation behind each provider.
// Individual providers differ only in base URL, records path and the kind
// they stamp onto records.
type httpAdapter struct {
	provider   models.Provider
	baseURL    string
	path       string
	recordKind string
	client     *http.Client
}

type pageResponse struct {
	Records []struct {
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	} `json:"records"`
	NextCursor string `json:"next_cursor"`
}

func (a *httpAdapter) Provider() models.Provider { return a.provider }

func (a *httpAdapter) Fetch(ctx context.Context, creds json.RawMessage, cursor string) (*Page, error) {
	var pc providerCredentials
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &pc); err != nil {
			return nil, fmt.Errorf("%s: malformed credentials: %w", a.provider, err)
		}
	}

	endpoint := a.baseURL + a.path
	if cursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if pc.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+pc.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: fetch returned HTTP %d", a.provider, resp.StatusCode)
	}

	var body pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: decoding page: %w", a.provider, err)
	}

	page := &Page{NextCursor: body.NextCursor}
	for _, rec := range body.Records {
		page.Records = append(page.Records, models.Record{
			ID:       rec.ID,
			Kind:     a.recordKind,
			Provider: a.provider,
			Payload:  rec.Payload,
		})
	}
	return page, nil
}

func (a *httpAdapter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.baseURL+a.path, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s: probe returned HTTP %d", a.provider, resp.StatusCode)
	}
	return nil
}

func newHTTPAdapter(provider models.Provider, baseURL, path, kind string, timeout time.Duration) *httpAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpAdapter{
		provider:   provider,
		baseURL:    baseURL,
		path:       path,
		recordKind: kind,
		client:     &http.Client{Timeout: timeout},
	}
}

// NewDefaultRegistry builds the adapter registry for every known provider.
// Base URLs come from config so staging can point at sandboxes.
func NewDefaultRegistry(cfg config.ProvidersConfig, timeout time.Duration) *Registry {
	gong := cfg.GongBaseURL
	if gong == "" {
		gong = "https://api.gong.io/v2"
	}
	fireflies := cfg.FirefliesBaseURL
	if fireflies == "" {
		fireflies = "https://api.fireflies.ai/v1"
	}
	hubspot := cfg.HubspotBaseURL
	if hubspot == "" {
		hubspot = "https://api.hubapi.com/crm/v3"
	}
	salesforce := cfg.SalesforceBaseURL
	if salesforce == "" {
		salesforce = "https://api.salesforce.com/v58"
	}

	return NewRegistry(
		newHTTPAdapter(models.ProviderGong, gong, "/calls", "call_recording", timeout),
		newHTTPAdapter(models.ProviderFireflies, fireflies, "/transcripts", "call_recording", timeout),
		newHTTPAdapter(models.ProviderHubspot, hubspot, "/objects/contacts", "crm_contact", timeout),
		newHTTPAdapter(models.ProviderSalesforce, salesforce, "/records", "crm_record", timeout),
	)
}
