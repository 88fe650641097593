// Package db provides repository interfaces for NatureLog data models.
package db

import (
	"github.com/naturelog/backend/internal/models"
)

// ObservationRepository defines operations for observation persistence.
// This interface allows mocking for testing and follows the Interface
// Segregation Principle.
type ObservationRepository interface {
	// CreateObservation creates a new observation.
	CreateObservation(obs *models.Observation) error

	// GetObservation retrieves an observation by ID.
	GetObservation(id string) (*models.Observation, error)

	// ListObservations returns observations with pagination.
	ListObservations(limit, offset int) ([]*models.Observation, error)

	// UpdateObservation updates an existing observation.
	UpdateObservation(obs *models.Observation) error

	// DeleteObservation removes an observation.
	DeleteObservation(id string) error
}

// SyncStore defines the local-store operations the sync engine needs.
type SyncStore interface {
	// PendingObservations returns all records awaiting sync, oldest first.
	PendingObservations() ([]*models.Observation, error)

	// MarkSynced clears the pending flag for a record.
	MarkSynced(id string) error

	// ResolveMedia replaces a local media path with its remote URL.
	ResolveMedia(id, mediaURL string) error
}

// SyncReportRepository defines operations for sync pass history.
type SyncReportRepository interface {
	// CreateSyncReport records the outcome of one sync pass.
	CreateSyncReport(report *models.SyncReport) error

	// ListSyncReports returns recent sync reports, newest first.
	ListSyncReports(limit int) ([]*models.SyncReport, error)
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ ObservationRepository = (*Repository)(nil)
	_ SyncStore             = (*Repository)(nil)
	_ SyncReportRepository  = (*Repository)(nil)
)
