package accesstoken

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

// MemRepo is a thread-safe in-memory Repository suitable for tests and
// single-node development. Its mutex plays the role the conditional UPDATE
// plays in Postgres: the active check and the increment in ConsumeAccess are
// one critical section.
type MemRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*AccessToken
	byHash  map[string]uuid.UUID
	ordered []uuid.UUID // insertion order, for stable pagination
}

// NewMemRepo creates an empty in-memory token store.
func NewMemRepo() *MemRepo {
	return &MemRepo{
		byID:   make(map[uuid.UUID]*AccessToken),
		byHash: make(map[string]uuid.UUID),
	}
}

func (r *MemRepo) Create(_ context.Context, t *AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := copyToken(t)
	r.byID[cp.ID] = cp
	if cp.SecretHash != "" {
		r.byHash[cp.SecretHash] = cp.ID
	}
	r.ordered = append(r.ordered, cp.ID)
	return nil
}

func (r *MemRepo) GetByID(_ context.Context, id uuid.UUID) (*AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (r *MemRepo) GetBySecretHash(_ context.Context, hash string) (*AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	t, ok := r.byID[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (r *MemRepo) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*AccessToken, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Newest first: walk insertion order backwards.
	var matching []*AccessToken
	for i := len(r.ordered) - 1; i >= 0; i-- {
		t, ok := r.byID[r.ordered[i]]
		if !ok {
			continue
		}
		if t.OwnerID == ownerID {
			matching = append(matching, t)
		}
	}

	total := len(matching)
	if offset > len(matching) {
		offset = len(matching)
	}
	matching = matching[offset:]
	if limit > 0 && limit < len(matching) {
		matching = matching[:limit]
	}

	result := make([]*AccessToken, len(matching))
	for i, t := range matching {
		result[i] = copyToken(t)
	}
	return result, total, nil
}

func (r *MemRepo) ConsumeAccess(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	if !t.Active(now) {
		return false, nil
	}
	t.AccessCount++
	return true, nil
}

func (r *MemRepo) Revoke(_ context.Context, id uuid.UUID, revokedBy *string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return false, ErrTokenNotFound
	}
	if t.RevokedAt != nil {
		return false, nil
	}
	at := now
	t.RevokedAt = &at
	if revokedBy != nil {
		by := *revokedBy
		t.RevokedBy = &by
	}
	return true, nil
}

// copyToken returns a deep copy so callers cannot mutate the store's state
// through shared pointers.
func copyToken(t *AccessToken) *AccessToken {
	cp := *t
	if t.AllowedRecordTypes != nil {
		cp.AllowedRecordTypes = make([]records.RecordType, len(t.AllowedRecordTypes))
		copy(cp.AllowedRecordTypes, t.AllowedRecordTypes)
	}
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cp.RevokedAt = &at
	}
	if t.RevokedBy != nil {
		by := *t.RevokedBy
		cp.RevokedBy = &by
	}
	if t.AccessLimit != nil {
		l := *t.AccessLimit
		cp.AccessLimit = &l
	}
	return &cp
}
