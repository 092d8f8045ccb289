// File: internal/infra/db/postgres/exec.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// errRow lets pickRow surface executor-resolution failures at Scan time, so
// repository methods keep the single row.Scan error path.
type errRow struct{ err error }

func (r errRow) Scan(...interface{}) error { return r.err }

// pickRow runs a single-row query on the tx handle when one is present,
// falling back to the pool.
func pickRow(ctx context.Context, pool *pgxpool.Pool, tx interface{}, sql string, args ...interface{}) pgx.Row {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return errRow{err: err}
	}
	return ex.QueryRow(ctx, sql, args...)
}

// execSQL runs a statement on the tx handle when one is present, falling back
// to the pool.
func execSQL(ctx context.Context, pool *pgxpool.Pool, tx interface{}, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, fmt.Errorf("resolve executor: %w", err)
	}
	return ex.Exec(ctx, sql, args...)
}

// queryRows runs a multi-row query on the tx handle when one is present,
// falling back to the pool.
func queryRows(ctx context.Context, pool *pgxpool.Pool, tx interface{}, sql string, args ...interface{}) (pgx.Rows, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, fmt.Errorf("resolve executor: %w", err)
	}
	return ex.Query(ctx, sql, args...)
}
