package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the write surface shared by *pgxpool.Pool and pgx.Tx, so a
// repository insert can run standalone or inside a run's transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
