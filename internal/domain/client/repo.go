package client

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("client not found")

// Repository persists the client roster.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	List(ctx context.Context, limit, offset int) ([]*Client, int, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
