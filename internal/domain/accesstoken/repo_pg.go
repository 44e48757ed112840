package accesstoken

import (
	"context"
	"errors"
	"time"

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

// NewRepoPG creates the Postgres-backed token repository.
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

const tokenCols = `id, secret_hash, secret_prefix, owner_id, grantee_id, grantee_type,
	allowed_record_types, expires_at, revoked_at, revoked_by, access_limit, access_count, created_at`

func scanToken(row pgx.Row) (*AccessToken, error) {
	var t AccessToken
	var types []string
	err := row.Scan(&t.ID, &t.SecretHash, &t.SecretPrefix, &t.OwnerID, &t.GranteeID, &t.GranteeType,
		&types, &t.ExpiresAt, &t.RevokedAt, &t.RevokedBy, &t.AccessLimit, &t.AccessCount, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.AllowedRecordTypes = records.TypesFromStrings(types)
	return &t, nil
}

func (r *repoPG) Create(ctx context.Context, t *AccessToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO access_token (id, secret_hash, secret_prefix, owner_id, grantee_id, grantee_type,
			allowed_record_types, expires_at, access_limit, access_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		t.ID, t.SecretHash, t.SecretPrefix, t.OwnerID, t.GranteeID, t.GranteeType,
		records.TypeStrings(t.AllowedRecordTypes), t.ExpiresAt, t.AccessLimit, t.AccessCount, t.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AccessToken, error) {
	t, err := scanToken(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tokenCols+` FROM access_token WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return t, err
}

func (r *repoPG) GetBySecretHash(ctx context.Context, hash string) (*AccessToken, error) {
	t, err := scanToken(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tokenCols+` FROM access_token WHERE secret_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return t, err
}

func (r *repoPG) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*AccessToken, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM access_token WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tokenCols+` FROM access_token WHERE owner_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AccessToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// ConsumeAccess performs the limit check and the increment as one conditional
// UPDATE; the row count tells us whether the token was still active. This is
// the single point where access_count changes.
func (r *repoPG) ConsumeAccess(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE access_token
		   SET access_count = access_count + 1
		 WHERE id = $1
		   AND revoked_at IS NULL
		   AND expires_at > $2
		   AND (access_limit IS NULL OR access_count < access_limit)`,
		id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Revoke(ctx context.Context, id uuid.UUID, revokedBy *string, now time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE access_token
		   SET revoked_at = $2, revoked_by = $3
		 WHERE id = $1 AND revoked_at IS NULL`,
		id, now, revokedBy)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Zero rows: either already revoked (idempotent no-op) or unknown id.
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_token WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrTokenNotFound
	}
	return false, nil
}
