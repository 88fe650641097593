package sync

import (
	"context"

	"github.com/naturelog/backend/internal/db"
	"github.com/naturelog/backend/internal/logging"
	"github.com/naturelog/backend/internal/models"
)

// SyncTransport is the narrow interface between the orchestrator and its
// collaborators: the remote endpoint and the local store.
type SyncTransport interface {
	// PendingRecords returns all records awaiting synchronization in the
	// store's natural order. Callers must not assume any other ordering.
	PendingRecords(ctx context.Context) ([]*models.Observation, error)

	// Push upserts one record at the remote. Pushing the same ID twice
	// with identical payload yields success both times. If the record
	// carries local-only media, Push uploads it first and substitutes
	// the remote reference; from the caller's point of view either both
	// the media and the record are accepted or neither is.
	Push(ctx context.Context, obs *models.Observation) error

	// MarkSynced clears the record's pending flag in the local store.
	// Safe to call for records deleted concurrently by the repository.
	MarkSynced(ctx context.Context, id string) error
}

// StoreTransport implements SyncTransport over the SQLite repository and
// the HTTP remote client.
type StoreTransport struct {
	store  db.SyncStore
	remote *RemoteClient
}

// NewStoreTransport creates a transport bound to the given store and remote.
func NewStoreTransport(store db.SyncStore, remote *RemoteClient) *StoreTransport {
	return &StoreTransport{
		store:  store,
		remote: remote,
	}
}

// PendingRecords returns the pending snapshot from the local store.
func (t *StoreTransport) PendingRecords(ctx context.Context) ([]*models.Observation, error) {
	return t.store.PendingObservations()
}

// Push uploads local media if present, then upserts the record remotely.
func (t *StoreTransport) Push(ctx context.Context, obs *models.Observation) error {
	if obs.HasLocalMedia() {
		mediaURL, err := t.remote.UploadMedia(ctx, obs.ID.String(), obs.MediaPath)
		if err != nil {
			return err
		}

		obs.MediaURL = mediaURL
		obs.MediaPath = ""

		// Persist the resolved reference so a later pass doesn't upload
		// the same file again. The record itself stays pending until the
		// upsert is confirmed.
		if err := t.store.ResolveMedia(obs.ID.String(), mediaURL); err != nil {
			logging.Warn("Failed to persist resolved media reference",
				map[string]interface{}{"observation_id": obs.ID.String()})
		}
	}

	return t.remote.UpsertObservation(ctx, obs)
}

// MarkSynced clears the pending flag in the local store.
func (t *StoreTransport) MarkSynced(ctx context.Context, id string) error {
	return t.store.MarkSynced(id)
}

// Ensure StoreTransport implements the interface at compile time.
var _ SyncTransport = (*StoreTransport)(nil)
