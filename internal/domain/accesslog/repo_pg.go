package accesslog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
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

// NewRepoPG creates the Postgres-backed audit log repository.
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

const logCols = `id, token_id, accessor_id, record_types, outcome, origin_ip, user_agent, accessed_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var types []string
	err := row.Scan(&e.ID, &e.TokenID, &e.AccessorID, &types, &e.Outcome,
		&e.OriginIP, &e.UserAgent, &e.AccessedAt)
	if err != nil {
		return nil, err
	}
	e.RecordTypes = records.TypesFromStrings(types)
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO access_log (id, token_id, accessor_id, record_types, outcome, origin_ip, user_agent, accessed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.TokenID, e.AccessorID, records.TypeStrings(e.RecordTypes),
		e.Outcome, e.OriginIP, e.UserAgent, e.AccessedAt)
	return err
}

func (r *repoPG) ListByToken(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM access_log WHERE token_id = $1`, tokenID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+logCols+` FROM access_log WHERE token_id = $1
		 ORDER BY accessed_at DESC, id DESC LIMIT $2 OFFSET $3`,
		tokenID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
