// Package db tests for schema migrations.
package db

import (
	"testing"
)

// TestMigrator_appliesAllSteps verifies a fresh database ends up with
// every step recorded.
func TestMigrator_appliesAllSteps(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer database.Close()

	migrator := NewMigrator(database.DB)
	if err := migrator.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	applied, err := migrator.Applied()
	if err != nil {
		t.Fatalf("Applied() error = %v", err)
	}
	if len(applied) != len(migrationSteps) {
		t.Fatalf("applied = %d migrations, want %d", len(applied), len(migrationSteps))
	}
	for i, mig := range applied {
		if mig.Version != migrationSteps[i].Version {
			t.Errorf("applied[%d].Version = %d, want %d", i, mig.Version, migrationSteps[i].Version)
		}
		if len(mig.Checksum) != 64 {
			t.Errorf("applied[%d] checksum length = %d, want 64", i, len(mig.Checksum))
		}
	}

	// Tables exist and are queryable.
	for _, table := range []string{"observations", "sync_reports"} {
		var count int
		if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("table %s not usable: %v", table, err)
		}
	}
}

// TestMigrator_idempotent verifies a second run applies nothing and
// fails nothing.
func TestMigrator_idempotent(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer database.Close()

	migrator := NewMigrator(database.DB)
	if err := migrator.Run(); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := migrator.Run(); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	applied, err := migrator.Applied()
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != len(migrationSteps) {
		t.Errorf("applied = %d migrations after rerun, want %d", len(applied), len(migrationSteps))
	}
}
