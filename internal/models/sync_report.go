// Package models provides data model definitions for the NatureLog core.
package models

// SyncReport records the outcome of one completed sync pass.
// Reports are history only; the engine never reads them back to decide
// what to sync (the pending_sync marker on observations is the queue).
type SyncReport struct {
	ID         UUID   `db:"id" json:"id"`
	StartedAt  int64  `db:"started_at" json:"started_at"`
	FinishedAt int64  `db:"finished_at" json:"finished_at"`
	Attempted  int    `db:"attempted" json:"attempted"`
	Succeeded  int    `db:"succeeded" json:"succeeded"`
	Failed     int    `db:"failed" json:"failed"`
	FirstError string `db:"first_error" json:"first_error,omitempty"`
}

// TableName returns the table name for SyncReport.
func (SyncReport) TableName() string {
	return "sync_reports"
}
