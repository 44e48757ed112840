package accesstoken

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists access tokens. Tokens are never deleted; revocation and
// access accounting are conditional single-row updates.
type Repository interface {
	Create(ctx context.Context, t *AccessToken) error

	GetByID(ctx context.Context, id uuid.UUID) (*AccessToken, error)

	// GetBySecretHash resolves a presented secret's hash to its token, or
	// ErrTokenNotFound.
	GetBySecretHash(ctx context.Context, hash string) (*AccessToken, error)

	// ListByOwner returns an owner's tokens newest-first with the total count
	// before pagination.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*AccessToken, int, error)

	// ConsumeAccess atomically increments the token's access count if and only
	// if the token is still active at now: not revoked, not expired, and under
	// its access limit. The check and the increment are one conditional write;
	// concurrent callers can never push the count past the limit. Returns
	// whether an access unit was consumed.
	ConsumeAccess(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// Revoke sets revoked_at/revoked_by if the token is not yet revoked.
	// Returns whether this call performed the revocation (false means the
	// token was already revoked, which is a no-op, not an error). Unknown ids
	// return ErrTokenNotFound.
	Revoke(ctx context.Context, id uuid.UUID, revokedBy *string, now time.Time) (bool, error)
}
