package database

import (
	"context"
	"database/sql"
	"time"

	"storagebooking/internal/clock"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries is shared by DB and Tx so reads inside a transaction see its writes.
type queries struct {
	q     querier
	clock clock.Clock
}

func (q queries) now() time.Time {
	return q.clock.Now().UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
