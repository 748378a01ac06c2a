package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect holds the SQL that differs between the supported databases.
type Dialect struct {
	Name   string
	Schema string
	Select string
	Upsert string
}

var (
	Postgres = Dialect{
		Name: "pgx",
		Schema: `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		Select: `SELECT value FROM kv_entries WHERE key = $1`,
		Upsert: `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
	}

	SQLite = Dialect{
		Name: "sqlite3",
		Schema: `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		Select: `SELECT value FROM kv_entries WHERE key = ?`,
		Upsert: `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
	}
)

// DB wraps sql.DB for Postgres (pgx) or SQLite.
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open(Postgres.Name, connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Client: db, Dialect: Postgres}, nil
}

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open(SQLite.Name, path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{Client: db, Dialect: SQLite}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// SQLBackend keeps key-value pairs in the kv_entries table.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLBackend migrates the kv table and returns a backend over it.
func NewSQLBackend(ctx context.Context, d *DB) (*SQLBackend, error) {
	if _, err := d.Client.ExecContext(ctx, d.Dialect.Schema); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &SQLBackend{db: d.Client, dialect: d.Dialect}, nil
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := b.db.QueryRowContext(ctx, b.dialect.Select, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx, b.dialect.Upsert, key, value)
	return err
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}
