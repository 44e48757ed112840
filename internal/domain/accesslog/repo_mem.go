package accesslog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

// MemRepo is a thread-safe in-memory Repository for tests and single-node
// development runs.
type MemRepo struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemRepo creates an empty in-memory audit log.
func NewMemRepo() *MemRepo {
	return &MemRepo{}
}

func (r *MemRepo) Create(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.entries = append(r.entries, copyEntry(e))
	return nil
}

func (r *MemRepo) ListByToken(_ context.Context, tokenID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []*Entry
	for _, e := range r.entries {
		if e.TokenID == tokenID {
			matching = append(matching, e)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].AccessedAt.After(matching[j].AccessedAt)
	})

	total := len(matching)
	if offset > len(matching) {
		offset = len(matching)
	}
	matching = matching[offset:]
	if limit > 0 && limit < len(matching) {
		matching = matching[:limit]
	}

	result := make([]*Entry, len(matching))
	for i, e := range matching {
		result[i] = copyEntry(e)
	}
	return result, total, nil
}

func copyEntry(e *Entry) *Entry {
	cp := *e
	if e.AccessorID != nil {
		a := *e.AccessorID
		cp.AccessorID = &a
	}
	if e.RecordTypes != nil {
		cp.RecordTypes = make([]records.RecordType, len(e.RecordTypes))
		copy(cp.RecordTypes, e.RecordTypes)
	}
	return &cp
}
