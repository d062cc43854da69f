// Package cache is the durable, process-restart-surviving store for fetched
// workspace records. Entries live in a SQLite database under the base
// directory; the on-disk layout is private to this package and may change
// freely. Deleting the database entirely is not an error, only a cold cache.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/gptscan.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.gptscan.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "gptscan.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Cached records can contain instructions and sharing data; keep the
	// file private to the user.
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS entries (
		  cache_key     TEXT PRIMARY KEY,
		  workspace_id  TEXT NOT NULL,
		  resource      TEXT NOT NULL,
		  params_hash   TEXT NOT NULL,
		  payload       TEXT NOT NULL,
		  etag          TEXT,
		  run_id        TEXT,
		  record_count  INTEGER NOT NULL,
		  fetched_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_workspace
		ON entries(workspace_id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
