// Package db opens the relational store's underlying connection. Schema
// ownership (tables, migrations) belongs to the packages that use them —
// internal/documents and internal/embeddings — so this package only manages
// the connection itself.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB. The mutex guards multi-statement sequences that must
// not interleave (e.g. a migration run), not ordinary queries.
type DB struct {
	*sql.DB
	mu   sync.Mutex
	path string
}

// Open creates or opens a SQLite database at path: WAL journaling, a busy
// timeout so concurrent workers back off instead of erroring, and foreign
// keys on.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// OpenMemory opens an in-memory SQLite database, for tests.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	return &DB{DB: sqlDB, path: ":memory:"}, nil
}

// Lock and Unlock expose the sequencing mutex to migration runners.
func (d *DB) Lock()   { d.mu.Lock() }
func (d *DB) Unlock() { d.mu.Unlock() }

// Path returns the DSN path the DB was opened with.
func (d *DB) Path() string { return d.path }
