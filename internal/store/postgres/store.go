// Package postgres implements harvest.Store on a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const defaultTable = "harvested_items"

// Config controls the Postgres connection pool used for item rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store persists harvested items as rows keyed by artifact URL.
type Store struct {
	pool  pool
	table string
}

var _ harvest.Store = (*Store)(nil)

// New connects to Postgres and ensures the item table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p, table: table}
	if err := s.EnsureSchema(ctx); err != nil {
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
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the item table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id              BIGSERIAL PRIMARY KEY,
	artifact_url    TEXT NOT NULL UNIQUE,
	source_url      TEXT NOT NULL,
	title           TEXT,
	authors         TEXT,
	year            INTEGER NOT NULL DEFAULT 0,
	artifact_path   TEXT NOT NULL DEFAULT '',
	mirror_uri      TEXT,
	harvested_at    TIMESTAMPTZ NOT NULL,
	label           TEXT,
	artifact_sha256 TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// ReadAll returns every row in insertion order.
func (s *Store) ReadAll(ctx context.Context) ([]harvest.Item, error) {
	query, args, err := psql.
		Select(
			"source_url", "artifact_url", "COALESCE(title, '')", "COALESCE(authors, '')", "year",
			"artifact_path", "COALESCE(mirror_uri, '')", "harvested_at", "COALESCE(label, '')",
			"COALESCE(artifact_sha256, '')",
		).
		From(s.table).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []harvest.Item{}
	for rows.Next() {
		var (
			item  harvest.Item
			label string
		)
		if err := rows.Scan(
			&item.SourceURL,
			&item.ArtifactURL,
			&item.Title,
			&item.Authors,
			&item.Year,
			&item.ArtifactPath,
			&item.MirrorURI,
			&item.HarvestedAt,
			&label,
			&item.SHA256,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Label = harvest.Label(label)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// Append inserts one row. A second row for the same artifact URL is ignored,
// which closes the dedup race for this backend.
func (s *Store) Append(ctx context.Context, item harvest.Item) error {
	query, args, err := s.insert(item).Suffix("ON CONFLICT (artifact_url) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// RewriteAll replaces the table contents inside one transaction.
func (s *Store) RewriteAll(ctx context.Context, items []harvest.Item) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rewrite: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	deleteSQL, _, err := psql.Delete(s.table).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err = tx.Exec(ctx, deleteSQL); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	for _, item := range items {
		query, args, buildErr := s.insert(item).ToSql()
		if buildErr != nil {
			return fmt.Errorf("build insert: %w", buildErr)
		}
		if _, err = tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert item %s: %w", item.ArtifactURL, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rewrite: %w", err)
	}
	return nil
}

// insert builds the row insert; empty optional fields are stored as NULL.
func (s *Store) insert(item harvest.Item) sq.InsertBuilder {
	return psql.
		Insert(s.table).
		Columns(
			"artifact_url", "source_url", "title", "authors", "year",
			"artifact_path", "mirror_uri", "harvested_at", "label", "artifact_sha256",
		).
		Values(
			item.ArtifactURL,
			item.SourceURL,
			nullIfEmpty(item.Title),
			nullIfEmpty(item.Authors),
			item.Year,
			item.ArtifactPath,
			nullIfEmpty(item.MirrorURI),
			item.HarvestedAt,
			nullIfEmpty(string(item.Label)),
			nullIfEmpty(item.SHA256),
		)
}

func nullIfEmpty(v string) sq.Sqlizer {
	return sq.Expr("NULLIF(?, '')", v)
}
