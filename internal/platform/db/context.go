package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	txKey   contextKey = "db_tx"
	connKey contextKey = "db_conn"
)

// WithTx returns a context carrying an open transaction. Repositories route
// their statements through it so multi-statement operations commit atomically.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFromContext retrieves the transaction from context, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// WithConn returns a context carrying a dedicated pooled connection.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, connKey, conn)
}

// ConnFromContext retrieves the dedicated connection from context, if any.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(connKey).(*pgxpool.Conn)
	return conn
}
