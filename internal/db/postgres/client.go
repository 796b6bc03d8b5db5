package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/kbsearch/internal/db"
)

// Compile-time check: Store implements db.Connector.
var _ db.Connector = (*Store)(nil)

// Config holds connection parameters for a pgvector store.
type Config struct {
	DSN      string
	Schema   string // default "vecs"
	MaxConns int32
}

// Store implements db.Connector over Postgres with the pgvector extension.
// Each collection is a table schema.<name>(id text, vec vector(D), metadata jsonb).
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// NewStore creates a connection pool. Connections are dialed lazily.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	schema := cfg.Schema
	if schema == "" {
		schema = "vecs"
	}
	return &Store{pool: pool, schema: schema}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Connect acquires a pooled connection for the exclusive use of one session.
func (s *Store) Connect(ctx context.Context) (db.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &db.Error{Op: db.OpConnect, Err: err}
	}
	return newSession(conn, conn.Release, s.schema), nil
}

// Close closes every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// querier is the part of *pgxpool.Conn a session uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
