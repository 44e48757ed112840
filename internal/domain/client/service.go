package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Create(ctx context.Context, c *Client) error {
	if c.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if c.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Client, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// OwnerExists implements the token service's owner directory.
func (s *Service) OwnerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}
