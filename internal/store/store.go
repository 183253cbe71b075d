// Package store is the Postgres persistence layer for documents, extracted
// data, ledger records, provider settings and usage logs.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ledger-intake/internal/db"
)

// ErrNoDefaultProvider is returned when neither the tenant nor the platform
// has an active AI provider.
var ErrNoDefaultProvider = eris.New("store: no active AI provider configured")

// PostgresStore implements the document, ledger, settings and usage stores.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects a pool and returns a PostgresStore that owns it.
func NewPostgres(ctx context.Context, connString string, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// New wraps an existing pool. The caller keeps ownership of it.
func New(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool for subsystems that share it, such as the
// tenant store.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "store: ping")
}

// Migrate applies pending schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Close releases the pool if this store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
