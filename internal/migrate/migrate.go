// Package migrate applies reversible, version-keyed schema migrations: an
// ordered slice of {version, up, down} steps tracked in a bookkeeping table.
package migrate

import (
	"database/sql"
	"fmt"
)

// Migration is one forward/backward schema step, keyed by a monotonic
// version. Down is optional; an empty Down makes the migration irreversible.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

const bookkeepingTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
);`

// Apply runs every migration whose version is greater than the highest
// applied version, in ascending order, each inside its own transaction.
// Idempotent: running Apply again with the same set is a no-op.
func Apply(db *sql.DB, migrations []Migration) error {
	if _, err := db.Exec(bookkeepingTable); err != nil {
		return fmt.Errorf("migrate: creating bookkeeping table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyOne(db, m); err != nil {
			return fmt.Errorf("migrate: applying version %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("migrate: reading current version: %w", err)
	}
	return int(v.Int64), nil
}

func applyOne(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("up: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// Rollback reverts migrations with version > target, descending, using each
// migration's Down statement. Returns an error if any targeted migration
// has no Down.
func Rollback(db *sql.DB, migrations []Migration, target int) error {
	current, err := currentVersion(db)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if m.Version <= target || m.Version > current {
			continue
		}
		if m.Down == "" {
			return fmt.Errorf("migrate: version %d (%s) has no down migration", m.Version, m.Name)
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.Down); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate: reverting version %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_migrations WHERE version = ?`, m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate: clearing version %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
