package records

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Source retrieves the records of one record type for one owner. Each backing
// store (observations, visit notes, history, external systems) plugs in behind
// this interface.
type Source interface {
	FetchByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Record, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context, ownerID uuid.UUID, limit int) ([]Record, error)

func (f SourceFunc) FetchByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Record, error) {
	return f(ctx, ownerID, limit)
}

// DefaultFetchLimit bounds how many rows a single share request pulls per
// record type.
const DefaultFetchLimit = 100

// Registry dispatches record fetches to the Source registered for each record
// type. A granted type with no registered source resolves to an empty result
// instead of an error, so the vocabulary can grow ahead of the fetchers.
type Registry struct {
	mu      sync.RWMutex
	sources map[RecordType]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[RecordType]Source)}
}

// Register binds a source to a record type, replacing any previous binding.
func (r *Registry) Register(rt RecordType, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[rt] = src
}

// FetchGranted retrieves records for every granted type. The returned map has
// one key per requested type; types without a source map to an empty slice.
// A failing source fails the whole fetch: partial data with a 200 status would
// be indistinguishable from a complete result.
func (r *Registry) FetchGranted(ctx context.Context, ownerID uuid.UUID, types []RecordType) (map[RecordType][]Record, error) {
	out := make(map[RecordType][]Record, len(types))
	for _, rt := range types {
		r.mu.RLock()
		src, ok := r.sources[rt]
		r.mu.RUnlock()
		if !ok {
			out[rt] = []Record{}
			continue
		}
		recs, err := src.FetchByOwner(ctx, ownerID, DefaultFetchLimit)
		if err != nil {
			return nil, err
		}
		if recs == nil {
			recs = []Record{}
		}
		out[rt] = recs
	}
	return out, nil
}
