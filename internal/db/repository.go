// Package db provides CRUD repository operations for NatureLog data models.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/naturelog/backend/internal/models"
	"github.com/naturelog/backend/internal/uuid"
)

// Repository provides CRUD operations for all models.
// Frequently used queries go through a prepared statement cache.
type Repository struct {
	db *sql.DB

	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Observation Operations
// =====================================================

const observationColumns = `id, owner_id, species, notes, latitude, longitude,
	observed_at, media_url, media_path, pending_sync, created_at, updated_at`

// CreateObservation creates a new observation. New records are always
// pending synchronization until the sync engine confirms a remote upsert.
func (r *Repository) CreateObservation(obs *models.Observation) error {
	now := time.Now().Unix()
	if obs.ID == "" {
		obs.ID = models.UUID(uuid.New())
	}
	obs.CreatedAt = now
	obs.UpdatedAt = now
	obs.PendingSync = true

	query := `
	INSERT INTO observations (` + observationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, obs.ID, obs.OwnerID, obs.Species, obs.Notes,
		obs.Latitude, obs.Longitude, obs.ObservedAt,
		obs.MediaURL, obs.MediaPath, obs.PendingSync,
		obs.CreatedAt, obs.UpdatedAt)
	return err
}

// GetObservation retrieves an observation by ID.
func (r *Repository) GetObservation(id string) (*models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE id = ?`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	return scanObservation(stmt.QueryRow(id))
}

// ListObservations returns observations ordered by creation time, newest first.
func (r *Repository) ListObservations(limit, offset int) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
	FROM observations ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObservations(rows)
}

// UpdateObservation updates an existing observation and flags it pending
// so the sync engine will push the new revision.
func (r *Repository) UpdateObservation(obs *models.Observation) error {
	obs.UpdatedAt = time.Now().Unix()
	obs.PendingSync = true

	query := `
	UPDATE observations
	SET owner_id = ?, species = ?, notes = ?, latitude = ?, longitude = ?,
		observed_at = ?, media_url = ?, media_path = ?, pending_sync = ?, updated_at = ?
	WHERE id = ?
	`
	_, err := r.db.Exec(query, obs.OwnerID, obs.Species, obs.Notes,
		obs.Latitude, obs.Longitude, obs.ObservedAt,
		obs.MediaURL, obs.MediaPath, obs.PendingSync, obs.UpdatedAt, obs.ID)
	return err
}

// DeleteObservation removes an observation. Deletion is a repository
// operation; the sync engine never deletes records.
func (r *Repository) DeleteObservation(id string) error {
	_, err := r.db.Exec(`DELETE FROM observations WHERE id = ?`, id)
	return err
}

// =====================================================
// Sync Operations
// =====================================================

// PendingObservations returns all observations awaiting synchronization,
// oldest first, so long-waiting records are not starved.
func (r *Repository) PendingObservations() ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
	FROM observations WHERE pending_sync = 1 ORDER BY created_at ASC, rowid ASC`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObservations(rows)
}

// CountPending returns the number of observations awaiting synchronization.
func (r *Repository) CountPending() (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM observations WHERE pending_sync = 1`).Scan(&count)
	return count, err
}

// MarkSynced clears the pending flag after a confirmed remote upsert.
// A no-op when the record was deleted concurrently by the repository.
func (r *Repository) MarkSynced(id string) error {
	_, err := r.db.Exec(
		`UPDATE observations SET pending_sync = 0, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	return err
}

// ResolveMedia replaces a local-only media path with its uploaded remote
// URL. Called by the sync transport once the upload is confirmed; a no-op
// if the record no longer exists.
func (r *Repository) ResolveMedia(id, mediaURL string) error {
	_, err := r.db.Exec(
		`UPDATE observations SET media_url = ?, media_path = '', updated_at = ? WHERE id = ?`,
		mediaURL, time.Now().Unix(), id)
	return err
}

// =====================================================
// SyncReport Operations
// =====================================================

// CreateSyncReport records the outcome of a completed sync pass.
func (r *Repository) CreateSyncReport(report *models.SyncReport) error {
	if report.ID == "" {
		report.ID = models.UUID(uuid.New())
	}

	query := `
	INSERT INTO sync_reports (id, started_at, finished_at, attempted, succeeded, failed, first_error)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, report.ID, report.StartedAt, report.FinishedAt,
		report.Attempted, report.Succeeded, report.Failed, report.FirstError)
	return err
}

// ListSyncReports returns recent sync reports, newest first.
func (r *Repository) ListSyncReports(limit int) ([]*models.SyncReport, error) {
	query := `
	SELECT id, started_at, finished_at, attempted, succeeded, failed, first_error
	FROM sync_reports ORDER BY started_at DESC LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*models.SyncReport
	for rows.Next() {
		var report models.SyncReport
		if err := rows.Scan(&report.ID, &report.StartedAt, &report.FinishedAt,
			&report.Attempted, &report.Succeeded, &report.Failed, &report.FirstError); err != nil {
			return nil, err
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

// =====================================================
// Scan Helpers
// =====================================================

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanObservation(row rowScanner) (*models.Observation, error) {
	var obs models.Observation
	err := row.Scan(
		&obs.ID, &obs.OwnerID, &obs.Species, &obs.Notes,
		&obs.Latitude, &obs.Longitude, &obs.ObservedAt,
		&obs.MediaURL, &obs.MediaPath, &obs.PendingSync,
		&obs.CreatedAt, &obs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func scanObservations(rows *sql.Rows) ([]*models.Observation, error) {
	var observations []*models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}
