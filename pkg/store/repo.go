package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the repository facade every scrywarden component queries
// through. It holds no state beyond the pool; all coordination lives in
// the SQL (unique constraints, ON CONFLICT clauses, FOR UPDATE where
// needed) rather than in-process locks, since collect and investigate run
// as separate processes.
type Repo struct {
	pool *pgxpool.Pool
}

// New builds a Repo over an already-migrated pool.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Ping checks the pool's connectivity, for use by health endpoints.
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
