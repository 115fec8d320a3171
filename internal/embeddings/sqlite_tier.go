package embeddings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/walksalot/docpipe/internal/db"
	"github.com/walksalot/docpipe/internal/migrate"
)

var sqliteMigrations = []migrate.Migration{
	{
		Version: 1,
		Name:    "create_embedding_cache",
		Up: `CREATE TABLE embedding_cache (
			key TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			vector BLOB NOT NULL,
			created_at DATETIME NOT NULL,
			last_accessed_at DATETIME NOT NULL
		);
		CREATE INDEX idx_embedding_cache_last_accessed ON embedding_cache(last_accessed_at);`,
		Down: `DROP TABLE embedding_cache;`,
	},
}

// sqliteTier is the default DurableTier: a SQLite table, migrated the same
// way internal/documents migrates its schema.
type sqliteTier struct {
	db *db.DB
}

// NewSQLiteTier wraps an already-open *db.DB and applies the embedding
// cache's migrations against it.
func NewSQLiteTier(d *db.DB) (DurableTier, error) {
	d.Lock()
	defer d.Unlock()
	if err := migrate.Apply(d.DB, sqliteMigrations); err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	return &sqliteTier{db: d}, nil
}

func (t *sqliteTier) Get(ctx context.Context, key string) (*Record, bool, error) {
	var rec Record
	var vectorJSON string
	row := t.db.QueryRowContext(ctx, `SELECT key, model, dimensions, vector, created_at, last_accessed_at
		FROM embedding_cache WHERE key = ?`, key)
	err := row.Scan(&rec.Key, &rec.Model, &rec.Dimensions, &vectorJSON, &rec.CreatedAt, &rec.LastAccessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("embeddings: reading cache row: %w", err)
	}
	if err := json.Unmarshal([]byte(vectorJSON), &rec.Vector); err != nil {
		return nil, false, fmt.Errorf("embeddings: decoding vector: %w", err)
	}

	now := time.Now().UTC()
	if _, err := t.db.ExecContext(ctx, `UPDATE embedding_cache SET last_accessed_at = ? WHERE key = ?`, now, key); err != nil {
		return nil, false, fmt.Errorf("embeddings: touching last_accessed_at: %w", err)
	}
	rec.LastAccessedAt = now
	return &rec, true, nil
}

func (t *sqliteTier) Put(ctx context.Context, rec Record) error {
	vectorJSON, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("embeddings: encoding vector: %w", err)
	}
	_, err = t.db.ExecContext(ctx, `INSERT INTO embedding_cache (key, model, dimensions, vector, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET vector = excluded.vector, last_accessed_at = excluded.last_accessed_at`,
		rec.Key, rec.Model, rec.Dimensions, string(vectorJSON), rec.CreatedAt, rec.LastAccessedAt)
	if err != nil {
		return fmt.Errorf("embeddings: writing cache row: %w", err)
	}
	return nil
}

func (t *sqliteTier) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := t.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE last_accessed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("embeddings: sweeping expired entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *sqliteTier) CompactToSize(ctx context.Context, maxBytes int64) (int, error) {
	count, bytes, err := t.Stats(ctx)
	if err != nil {
		return 0, err
	}
	if bytes <= maxBytes || count == 0 {
		return 0, nil
	}

	evicted := 0
	for bytes > maxBytes {
		var key string
		var dims int
		row := t.db.QueryRowContext(ctx, `SELECT key, dimensions FROM embedding_cache ORDER BY last_accessed_at ASC LIMIT 1`)
		if err := row.Scan(&key, &dims); err != nil {
			break
		}
		if _, err := t.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE key = ?`, key); err != nil {
			return evicted, fmt.Errorf("embeddings: compacting cache: %w", err)
		}
		bytes -= int64(dims * 4)
		evicted++
	}
	return evicted, nil
}

func (t *sqliteTier) Stats(ctx context.Context) (int, int64, error) {
	var count int
	var totalDims int64
	row := t.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(dimensions), 0) FROM embedding_cache`)
	if err := row.Scan(&count, &totalDims); err != nil {
		return 0, 0, fmt.Errorf("embeddings: reading cache stats: %w", err)
	}
	return count, totalDims * 4, nil
}
