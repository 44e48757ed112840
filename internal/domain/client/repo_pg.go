package client

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG creates the Postgres-backed client repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const clientCols = `id, full_name, phone, email, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO client (id, full_name, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.FullName, c.Phone, c.Email, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+clientCols+` FROM client WHERE id = $1`, id)
	c, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Client, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM client`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+clientCols+` FROM client ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM client WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
