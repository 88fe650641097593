// Package models provides data model definitions for the NatureLog core.
package models

import (
	"database/sql/driver"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Observation represents a recorded field observation.
//
// PendingSync is local bookkeeping: it is set by the write path whenever
// a record is created or modified without a confirmed remote upsert, and
// cleared only by the sync engine after the remote accepts the record.
// It is never sent to the remote.
type Observation struct {
	ID         UUID    `db:"id" json:"id"`
	OwnerID    string  `db:"owner_id" json:"owner_id"`
	Species    string  `db:"species" json:"species"`
	Notes      string  `db:"notes" json:"notes,omitempty"`
	Latitude   float64 `db:"latitude" json:"latitude"`
	Longitude  float64 `db:"longitude" json:"longitude"`
	ObservedAt int64   `db:"observed_at" json:"observed_at"`

	// MediaURL holds the remote reference of an already-uploaded photo.
	// MediaPath holds a local-only file path awaiting upload. At most one
	// of the two should be set; a record with PendingSync false never has
	// a MediaPath.
	MediaURL  string `db:"media_url" json:"media_url,omitempty"`
	MediaPath string `db:"media_path" json:"-"`

	PendingSync bool  `db:"pending_sync" json:"-"`
	CreatedAt   int64 `db:"created_at" json:"created_at"`
	UpdatedAt   int64 `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Observation.
func (Observation) TableName() string {
	return "observations"
}

// HasMedia reports whether the observation carries a photo, local or remote.
func (o *Observation) HasMedia() bool {
	return o.MediaURL != "" || o.MediaPath != ""
}

// HasLocalMedia reports whether the observation has a photo that still
// needs to be uploaded.
func (o *Observation) HasLocalMedia() bool {
	return o.MediaPath != ""
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (o *Observation) CreatedAtTime() time.Time {
	return time.Unix(o.CreatedAt, 0)
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (o *Observation) UpdatedAtTime() time.Time {
	return time.Unix(o.UpdatedAt, 0)
}
