// Package sqlstore implements storage.Backend over database/sql, supporting
// sqlite, postgres, and mysql through the same schema and query set. The
// dialect only changes the driver name, the bind-placeholder style, and the
// upsert syntax used by Set.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lexlapax/llmspell/pkg/storage"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies which SQL backend a Config/Store targets.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Config describes how to connect to and pool a SQL-backed store.
type Config struct {
	Dialect  Dialect
	DSN      string
	MaxConns int
	MaxIdle  int
}

// SetDefaults fills unset pool-size fields with sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
}

// Validate checks the config is well-formed before opening a connection.
func (c *Config) Validate() error {
	switch c.Dialect {
	case DialectSQLite, DialectPostgres, DialectMySQL:
	default:
		return fmt.Errorf("sqlstore: unsupported dialect %q (supported: sqlite, postgres, mysql)", c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("sqlstore: dsn is required")
	}
	return nil
}

const createEntriesTableSQL = `
CREATE TABLE IF NOT EXISTS storage_entries (
    tenant VARCHAR(255) NOT NULL,
    key VARCHAR(1024) NOT NULL,
    value BLOB NOT NULL,
    schema_version VARCHAR(64) NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant, key)
);
`

// Store is a database/sql-backed storage.Backend.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database described by cfg, applies pool settings,
// pings it, and ensures the storage schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driverName := string(cfg.Dialect)
	if cfg.Dialect == DialectSQLite {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Dialect, err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", cfg.Dialect, err)
	}

	s := &Store{db: db, dialect: cfg.Dialect}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(schemaCtx, createEntriesTableSQL); err != nil {
		return fmt.Errorf("sqlstore: init schema: %w", err)
	}
	return nil
}

// placeholder returns the dialect-correct bind placeholder for position n (1-indexed).
func (s *Store) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) Get(ctx context.Context, tenant, key string) (storage.Entry, bool, error) {
	query := fmt.Sprintf(
		"SELECT value, schema_version FROM storage_entries WHERE tenant = %s AND key = %s",
		s.placeholder(1), s.placeholder(2),
	)
	var e storage.Entry
	err := s.db.QueryRowContext(ctx, query, tenant, key).Scan(&e.Value, &e.SchemaVersion)
	if err == sql.ErrNoRows {
		return storage.Entry{}, false, nil
	}
	if err != nil {
		return storage.Entry{}, false, fmt.Errorf("sqlstore: get: %w", err)
	}
	return e, true, nil
}

func (s *Store) Set(ctx context.Context, tenant, key string, entry storage.Entry) error {
	var query string
	switch s.dialect {
	case DialectPostgres:
		query = `INSERT INTO storage_entries (tenant, key, value, schema_version, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tenant, key) DO UPDATE SET value = $3, schema_version = $4, updated_at = $5`
	case DialectMySQL:
		query = `INSERT INTO storage_entries (tenant, key, value, schema_version, updated_at)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value), schema_version = VALUES(schema_version), updated_at = VALUES(updated_at)`
	default: // sqlite
		query = `INSERT INTO storage_entries (tenant, key, value, schema_version, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (tenant, key) DO UPDATE SET value = excluded.value, schema_version = excluded.schema_version, updated_at = excluded.updated_at`
	}

	_, err := s.db.ExecContext(ctx, query, tenant, key, entry.Value, entry.SchemaVersion, time.Now())
	if err != nil {
		return fmt.Errorf("sqlstore: set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, tenant, key string) (bool, error) {
	query := fmt.Sprintf(
		"DELETE FROM storage_entries WHERE tenant = %s AND key = %s",
		s.placeholder(1), s.placeholder(2),
	)
	res, err := s.db.ExecContext(ctx, query, tenant, key)
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, tenant, prefix string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT key FROM storage_entries WHERE tenant = %s AND key LIKE %s ESCAPE '\\'",
		s.placeholder(1), s.placeholder(2),
	)
	rows, err := s.db.QueryContext(ctx, query, tenant, escapeLikePrefix(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlstore: list scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// escapeLikePrefix escapes SQL LIKE metacharacters in a prefix so arbitrary
// keys (which may legitimately contain '%' or '_') don't get treated as
// wildcards.
func escapeLikePrefix(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
