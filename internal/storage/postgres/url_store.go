// Package postgres provides the Postgres-backed frontier store used for
// crash-safe crawl resumption.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarlsen/newsdex/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// URLStoreConfig controls the connection pool behind the frontier table.
type URLStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// URLStore persists frontier records in Postgres, one row per
// normalized URL. Expected schema:
//
//	CREATE TABLE frontier (
//	    url              TEXT PRIMARY KEY,
//	    state            TEXT NOT NULL,
//	    attempt_count    INT NOT NULL DEFAULT 0,
//	    discovered_at    TIMESTAMPTZ NOT NULL,
//	    last_attempt_at  TIMESTAMPTZ,
//	    next_eligible_at TIMESTAMPTZ
//	);
type URLStore struct {
	pool  pool
	table string
}

// NewURLStore connects a pool using the provided config.
func NewURLStore(ctx context.Context, cfg URLStoreConfig) (*URLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("frontier.postgres.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "frontier"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &URLStore{pool: p, table: table}, nil
}

// NewURLStoreWithPool constructs a store from an existing pool
// (primarily for testing with pgxmock).
func NewURLStoreWithPool(p pool, table string) (*URLStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "frontier"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &URLStore{pool: p, table: table}, nil
}

// Close releases the underlying pool.
func (s *URLStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveURL upserts a frontier record keyed by URL.
func (s *URLStore) SaveURL(ctx context.Context, record crawler.URLRecord) error {
	if record.URL == "" {
		return fmt.Errorf("record url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, state, attempt_count, discovered_at, last_attempt_at, next_eligible_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (url) DO UPDATE SET
	state = EXCLUDED.state,
	attempt_count = EXCLUDED.attempt_count,
	last_attempt_at = EXCLUDED.last_attempt_at,
	next_eligible_at = EXCLUDED.next_eligible_at`, s.table)

	args := []any{
		record.URL,
		string(record.State),
		record.AttemptCount,
		record.DiscoveredAt,
		nullableTime(record.LastAttemptAt),
		nullableTime(record.NextEligibleAt),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert frontier row: %w", err)
	}
	return nil
}

// LoadAll returns every frontier record in discovery order.
func (s *URLStore) LoadAll(ctx context.Context) ([]crawler.URLRecord, error) {
	query := fmt.Sprintf(`
SELECT url, state, attempt_count, discovered_at, last_attempt_at, next_eligible_at
FROM %s ORDER BY discovered_at, url`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query frontier rows: %w", err)
	}
	defer rows.Close()

	var out []crawler.URLRecord
	for rows.Next() {
		var (
			rec   crawler.URLRecord
			state string
			last  *time.Time
			next  *time.Time
		)
		if err := rows.Scan(&rec.URL, &state, &rec.AttemptCount, &rec.DiscoveredAt, &last, &next); err != nil {
			return nil, fmt.Errorf("scan frontier row: %w", err)
		}
		rec.State = crawler.URLState(state)
		if last != nil {
			rec.LastAttemptAt = *last
		}
		if next != nil {
			rec.NextEligibleAt = *next
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frontier rows: %w", err)
	}
	return out, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
