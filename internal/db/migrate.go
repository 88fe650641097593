// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents an applied database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrationStep is one versioned schema change. Steps are compiled in
// rather than read from disk so the mobile build ships no SQL files.
type migrationStep struct {
	Version     int
	Description string
	SQL         string
}

var migrationSteps = []migrationStep{
	{
		Version:     1,
		Description: "create observations table",
		SQL: `
CREATE TABLE IF NOT EXISTS observations (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	species TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	latitude REAL NOT NULL DEFAULT 0,
	longitude REAL NOT NULL DEFAULT 0,
	observed_at INTEGER NOT NULL,
	media_url TEXT NOT NULL DEFAULT '',
	media_path TEXT NOT NULL DEFAULT '',
	pending_sync INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_pending
	ON observations(pending_sync, created_at);`,
	},
	{
		Version:     2,
		Description: "create sync_reports table",
		SQL: `
CREATE TABLE IF NOT EXISTS sync_reports (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	attempted INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	first_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_reports_started
	ON sync_reports(started_at);`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// Run applies all pending migration steps in version order.
// Already-applied steps are verified against their recorded checksum so
// a modified step is caught instead of silently diverging the schema.
func (m *Migrator) Run() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	for _, step := range migrationSteps {
		sum := checksum(step.SQL)

		if recorded, ok := applied[step.Version]; ok {
			if recorded != sum {
				return fmt.Errorf("migration %d checksum mismatch: recorded %s, computed %s",
					step.Version, recorded, sum)
			}
			continue
		}

		if err := m.apply(step, sum); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", step.Version, step.Description, err)
		}
	}

	return nil
}

// apply runs one migration step and records it atomically.
func (m *Migrator) apply(step migrationStep, sum string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(step.SQL); err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)`,
		step.Version, time.Now().Unix(), step.Description, sum,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// appliedVersions returns the recorded checksum per applied version.
func (m *Migrator) appliedVersions() (map[int]string, error) {
	rows, err := m.db.Query(`SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var version int
		var sum string
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, err
		}
		applied[version] = sum
	}
	return applied, rows.Err()
}

// Applied returns the list of applied migrations in version order.
func (m *Migrator) Applied() ([]Migration, error) {
	rows, err := m.db.Query(
		`SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		migrations = append(migrations, mig)
	}
	return migrations, rows.Err()
}

// checksum computes the SHA-256 hex digest of a migration's SQL.
func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
