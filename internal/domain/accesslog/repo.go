package accesslog

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists audit entries. Implementations must treat entries as
// append-only.
type Repository interface {
	Create(ctx context.Context, e *Entry) error

	// ListByToken returns entries for a token ordered newest-first, plus the
	// total count before pagination.
	ListByToken(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
