package db

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Connect opens the connection pool and brings the schema up to date. DSN
// assembly lives in the config package so tests can construct a Database
// without touching the environment.
func Connect(ctx context.Context, dsn string) (*Database, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewDatabase(pool), nil
}
