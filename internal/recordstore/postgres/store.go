// Package postgres provides a Postgres-backed publish record store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/recordstore"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "publish_records"

// Config controls the Postgres connection pool used for publish records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists publish records in a table keyed by (host, hash).
type Store struct {
	pool  pool
	table string
}

var _ docs.RecordStore = (*Store)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("records.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the records table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	host        TEXT        NOT NULL,
	hash        TEXT        NOT NULL,
	outcome     TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (host, hash)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Get implements docs.RecordStore.
func (s *Store) Get(ctx context.Context, key docs.PublishKey) (docs.PublishRecord, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE host = $1 AND hash = $2`, s.table)
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, key.Host, key.Hash).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docs.PublishRecord{}, docs.ErrRecordNotFound
		}
		return docs.PublishRecord{}, fmt.Errorf("select record %s: %w", key, err)
	}
	return recordstore.Unmarshal(payload)
}

// Create implements docs.RecordStore. The primary key makes the insert a
// no-op when the record exists, which is reported as docs.ErrRecordExists.
func (s *Store) Create(ctx context.Context, rec docs.PublishRecord) error {
	payload, err := recordstore.Marshal(rec)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (host, hash, outcome, payload, recorded_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (host, hash) DO NOTHING`, s.table)

	tag, err := s.pool.Exec(ctx, query, rec.Key.Host, rec.Key.Hash, string(rec.Outcome), payload, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return docs.ErrRecordExists
	}
	return nil
}
