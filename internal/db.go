package internal

import (
	"context"
	"database/sql"
)

// querier is satisfied by both *sql.DB and *sql.Tx so ledger and
// lifecycle operations can run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
