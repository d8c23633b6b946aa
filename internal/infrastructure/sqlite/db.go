// Package sqlite implements the catalog and contributed food stores on SQLite.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Open opens (creating if needed) the SQLite database at path and migrates it.
// Tests pass a path under t.TempDir().
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// ConfigurePool applies connection pool limits. Zero values keep the driver defaults.
func ConfigurePool(db *sql.DB, maxOpen, maxIdle int) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: catalog and contributed tables
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS catalog_foods (
		  food_id             TEXT PRIMARY KEY,
		  display_name        TEXT NOT NULL,
		  name_norm           TEXT NOT NULL,
		  category1           TEXT NOT NULL DEFAULT '',
		  category1_norm      TEXT NOT NULL DEFAULT '',
		  category2           TEXT NOT NULL DEFAULT '',
		  category2_norm      TEXT NOT NULL DEFAULT '',
		  representative_name TEXT NOT NULL DEFAULT '',
		  rep_norm            TEXT NOT NULL DEFAULT '',
		  nutrients_json      TEXT NOT NULL DEFAULT '{}',
		  updated_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_catalog_name_norm
		ON catalog_foods(name_norm);

		CREATE INDEX IF NOT EXISTS idx_catalog_rep_norm
		ON catalog_foods(rep_norm)
		WHERE rep_norm <> '';

		CREATE INDEX IF NOT EXISTS idx_catalog_category1_norm
		ON catalog_foods(category1_norm);

		CREATE TABLE IF NOT EXISTS contributed_foods (
		  food_id             TEXT PRIMARY KEY,
		  owner_user_id       INTEGER NOT NULL,
		  display_name        TEXT NOT NULL,
		  name_norm           TEXT NOT NULL,
		  category1           TEXT NOT NULL DEFAULT '',
		  category2           TEXT NOT NULL DEFAULT '',
		  representative_name TEXT NOT NULL DEFAULT '',
		  ingredients_json    TEXT NOT NULL DEFAULT '[]',
		  nutrients_json      TEXT NOT NULL DEFAULT '{}',
		  usage_count         INTEGER NOT NULL DEFAULT 1 CHECK (usage_count >= 1),
		  is_approved         INTEGER NOT NULL DEFAULT 0,
		  approved_at         INTEGER,
		  created_at          INTEGER NOT NULL,
		  updated_at          INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_contributed_owner_name_norm
		ON contributed_foods(owner_user_id, name_norm);

		CREATE INDEX IF NOT EXISTS idx_contributed_popular
		ON contributed_foods(usage_count DESC)
		WHERE usage_count >= 2;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports both PRIMARY KEY and UNIQUE index violations this way
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}
