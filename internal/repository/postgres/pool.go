// Package postgres holds the pgx-backed implementations of the repository
// interfaces.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the slice of pgxpool.Pool the repositories actually call.
// *pgxpool.Pool satisfies it in production, pgxmock's pool in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// DB is the handle repository constructors take.
type DB struct{ Pool PgxPool }

// New connects a pgx pool to the given DSN.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

// Close releases the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

// sqlState extracts the Postgres error code, "" for non-Postgres errors.
func sqlState(err error) string {
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg.Code
	}
	return ""
}

// The two SQLSTATEs the repositories map to sentinels: unique violations and
// the permission-denied raised by the audit immutability trigger.
func isUniqueViolation(err error) bool { return sqlState(err) == "23505" }

func isPermissionDenied(err error) bool { return sqlState(err) == "42501" }
