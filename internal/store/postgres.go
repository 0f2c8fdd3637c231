// Package store owns the Postgres connection pool used by every
// SQL-backed subsystem. It does not contain domain queries; those live
// next to the domain packages that issue them.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/config"
	"github.com/education-data-collective/EDC-Processor-sub001/internal/db"
)

// Postgres wraps a pgx connection pool with lifecycle management.
type Postgres struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a Postgres with a connection pool sized from config.
func NewPostgres(ctx context.Context, connString string, cfg config.StoreConfig) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Postgres{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems
// that issue their own queries.
func (s *Postgres) Pool() db.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}
