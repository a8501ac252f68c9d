package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoRows is re-exported so callers outside this package can branch on
// missing rows without importing pgx.
var ErrNoRows = pgx.ErrNoRows

// Store bundles every repository over the shared connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps the pool with the repository methods defined across this package.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// IsNotFound reports whether err represents a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
