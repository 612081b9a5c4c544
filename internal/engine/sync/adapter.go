package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"syncline/internal/platform/models"
)

// Page is one page of provider records. An empty NextCursor means the
// provider has nothing further past this page.
type Page struct {
	Records    []models.Record `json:"records"`
	NextCursor string          `json:"next_cursor"`
}

// Adapter is the uniform boundary to one external provider. Implementations
// are pure I/O: fetch a page of records since a cursor, nothing else.
type Adapter interface {
	Provider() models.Provider

	// Fetch returns one page of records starting at cursor. An empty cursor
	// means "from the beginning". Credentials come from the integration
	// config and are opaque to the engine.
	Fetch(ctx context.Context, creds json.RawMessage, cursor string) (*Page, error)

	// Ping is a lightweight reachability probe used by the health monitor.
	Ping(ctx context.Context) error
}

// Registry resolves adapters by provider. It is built once at startup;
// lookups at sync time are plain map reads.
type Registry struct {
	adapters map[models.Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *Registry) Resolve(p models.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return a, nil
}

func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}
