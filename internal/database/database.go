package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sqlx.DB with the repository methods the services consume.
type DB struct {
	*sqlx.DB
}

// Options tunes the SQLite connection. Zero values fall back to
// DefaultOptions.
type Options struct {
	// How long a statement waits on a locked database before failing.
	BusyTimeout time.Duration
	// Connection pool ceiling for file-backed databases. In-memory
	// databases are always pinned to a single connection, since each new
	// connection would otherwise see its own empty database.
	MaxOpenConns int
}

// DefaultOptions returns the settings used when the caller has no opinion.
func DefaultOptions() Options {
	return Options{BusyTimeout: 5 * time.Second}
}

// Open connects to the SQLite database at path. Parent directories are
// created for file-backed databases; foreign keys are always enforced and
// file-backed databases run in WAL mode.
func Open(path string, opts Options) (*DB, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}

	memory := strings.Contains(path, ":memory:")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", strconv.FormatInt(opts.BusyTimeout.Milliseconds(), 10))
	if !memory {
		params.Set("_journal_mode", "WAL")
	}

	db, err := sqlx.Connect("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	switch {
	case memory:
		db.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	return &DB{db}, nil
}

// New opens the database at path with default options.
func New(path string) (*DB, error) {
	return Open(path, DefaultOptions())
}

// Migrate creates the schema. Every statement is idempotent, so running
// it on an existing database is safe.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
