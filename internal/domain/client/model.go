package client

import (
	"time"

	"github.com/google/uuid"
)

// Client is a person receiving home care whose records can be shared through
// access tokens. Phone is where grant notifications are sent.
type Client struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Phone     string    `db:"phone" json:"phone"`
	Email     *string   `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
