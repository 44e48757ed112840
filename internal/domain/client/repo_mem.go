package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemRepo is a thread-safe in-memory Repository for tests and single-node
// development.
type MemRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Client
	ordered []uuid.UUID
}

func NewMemRepo() *MemRepo {
	return &MemRepo{byID: make(map[uuid.UUID]*Client)}
}

func (r *MemRepo) Create(_ context.Context, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := copyClient(c)
	r.byID[cp.ID] = cp
	r.ordered = append(r.ordered, cp.ID)
	return nil
}

func (r *MemRepo) GetByID(_ context.Context, id uuid.UUID) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyClient(c), nil
}

func (r *MemRepo) List(_ context.Context, limit, offset int) ([]*Client, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.ordered)
	var out []*Client
	for i := len(r.ordered) - 1; i >= 0; i-- {
		if offset > 0 {
			offset--
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, copyClient(r.byID[r.ordered[i]]))
	}
	return out, total, nil
}

func (r *MemRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok, nil
}

func copyClient(c *Client) *Client {
	cp := *c
	if c.Email != nil {
		e := *c.Email
		cp.Email = &e
	}
	return &cp
}
