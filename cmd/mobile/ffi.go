// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libnaturelog.so (Android) / naturelog.framework (iOS)

package main

/*
#cgo CFLAGS: -Wall -Wextra
#cgo LDFLAGS: -shared
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"time"
	"unsafe"

	"github.com/naturelog/backend/internal/db"
	"github.com/naturelog/backend/internal/models"
	syncpkg "github.com/naturelog/backend/internal/sync"
)

var (
	once     stdsync.Once
	database *db.DB
	repo     *db.Repository
	engine   *syncpkg.Orchestrator
	monitor  *syncpkg.ConnectivityMonitor
	lastErr  string
	lastMu   stdsync.RWMutex
)

//export Init
// Init initializes the NatureLog core: local database, migrations and
// the sync engine pointed at the given remote. Returns 0 on success.
func Init(dataDir, remoteURL, authToken *C.char) int32 {
	once.Do(func() {
		var err error
		database, err = db.Open(C.GoString(dataDir))
		if err != nil {
			setLastError(fmt.Sprintf("Failed to open database: %v", err))
			return
		}

		migrator := db.NewMigrator(database.DB)
		if err := migrator.Initialize(); err != nil {
			setLastError(fmt.Sprintf("Failed to initialize migrator: %v", err))
			return
		}
		if err := migrator.Run(); err != nil {
			setLastError(fmt.Sprintf("Failed to apply migrations: %v", err))
			return
		}

		repo = db.NewRepository(database.DB)

		remote := syncpkg.NewRemoteClient(&syncpkg.RemoteConfig{
			BaseURL:   C.GoString(remoteURL),
			AuthToken: C.GoString(authToken),
		})
		monitor = syncpkg.NewConnectivityMonitor(
			syncpkg.NewHTTPProbe(remote.HealthURL()), 30*time.Second)

		engine = syncpkg.New(syncpkg.NewStoreTransport(repo, remote), monitor, nil)
		engine.SetRecorder(repo)
	})

	if engine == nil {
		return 1
	}
	return 0
}

//export Shutdown
// Shutdown disarms auto-sync and closes the database.
func Shutdown() {
	if engine != nil {
		engine.StopAutoSync()
	}
	if repo != nil {
		repo.Close()
	}
	if database != nil {
		database.Close()
	}
}

//export GetLastError
// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()

	return C.CString(lastErr)
}

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

// =====================================================
// Observation Operations
// =====================================================

//export ObservationCreate
// ObservationCreate creates a new observation record.
// Returns JSON string that must be freed by the caller.
func ObservationCreate(ownerID, species, notes *C.char, latitude, longitude C.double, observedAt C.longlong) *C.char {
	if repo == nil {
		setLastError("Core not initialized")
		return nil
	}

	obs := &models.Observation{
		OwnerID:    C.GoString(ownerID),
		Species:    C.GoString(species),
		Notes:      C.GoString(notes),
		Latitude:   float64(latitude),
		Longitude:  float64(longitude),
		ObservedAt: int64(observedAt),
	}

	if obs.Species == "" {
		setLastError("species is required")
		return nil
	}

	if err := repo.CreateObservation(obs); err != nil {
		setLastError(fmt.Sprintf("Failed to create observation: %v", err))
		return nil
	}

	return marshalResponse(obs)
}

//export ObservationList
// ObservationList lists observations with pagination, newest first.
// Returns JSON object that must be freed by the caller.
func ObservationList(limit, offset int32) *C.char {
	if repo == nil {
		setLastError("Core not initialized")
		return nil
	}

	items, err := repo.ListObservations(int(limit), int(offset))
	if err != nil {
		setLastError(fmt.Sprintf("Failed to list observations: %v", err))
		return nil
	}

	pending, err := repo.CountPending()
	if err != nil {
		setLastError(fmt.Sprintf("Failed to count pending: %v", err))
		return nil
	}

	return marshalResponse(map[string]interface{}{
		"items":   items,
		"total":   len(items),
		"pending": pending,
	})
}

//export ObservationGet
// ObservationGet gets an observation by ID.
// Returns JSON string that must be freed by the caller.
func ObservationGet(id *C.char) *C.char {
	if repo == nil {
		setLastError("Core not initialized")
		return nil
	}

	obs, err := repo.GetObservation(C.GoString(id))
	if err != nil {
		if err == sql.ErrNoRows {
			setLastError("Observation not found")
		} else {
			setLastError(fmt.Sprintf("Failed to get observation: %v", err))
		}
		return nil
	}

	return marshalResponse(obs)
}

//export ObservationUpdate
// ObservationUpdate updates species and notes of an observation. The
// record is re-flagged for synchronization.
// Returns JSON string that must be freed by the caller.
func ObservationUpdate(id, species, notes *C.char) *C.char {
	if repo == nil {
		setLastError("Core not initialized")
		return nil
	}

	obs, err := repo.GetObservation(C.GoString(id))
	if err != nil {
		if err == sql.ErrNoRows {
			setLastError("Observation not found")
		} else {
			setLastError(fmt.Sprintf("Failed to get observation: %v", err))
		}
		return nil
	}

	if species != nil {
		obs.Species = C.GoString(species)
	}
	if notes != nil {
		obs.Notes = C.GoString(notes)
	}

	if err := repo.UpdateObservation(obs); err != nil {
		setLastError(fmt.Sprintf("Failed to update observation: %v", err))
		return nil
	}

	return marshalResponse(obs)
}

//export ObservationDelete
// ObservationDelete deletes an observation.
// Returns 0 on success, non-zero on error.
func ObservationDelete(id *C.char) int32 {
	if repo == nil {
		setLastError("Core not initialized")
		return 1
	}

	if err := repo.DeleteObservation(C.GoString(id)); err != nil {
		setLastError(fmt.Sprintf("Failed to delete observation: %v", err))
		return 1
	}

	return 0
}

// =====================================================
// Sync Operations
// =====================================================

//export SyncNow
// SyncNow runs one full sync pass and blocks until it finishes.
// Returns JSON result that must be freed by the caller.
func SyncNow() *C.char {
	if engine == nil {
		setLastError("Core not initialized")
		return nil
	}

	result, err := engine.RunSyncPass(context.Background())
	if err != nil {
		setLastError(fmt.Sprintf("Sync pass failed: %v", err))
		return nil
	}

	return marshalResponse(map[string]interface{}{
		"attempted":  result.TotalAttempted,
		"successful": result.Successful,
		"failed":     result.Failed,
		"failed_ids": result.FailedIDs,
		"errors":     result.Errors,
	})
}

//export SyncStatus
// SyncStatus reports connectivity, in-flight state and pending count.
// Returns JSON string that must be freed by the caller.
func SyncStatus() *C.char {
	if engine == nil {
		setLastError("Core not initialized")
		return nil
	}

	pending, err := repo.CountPending()
	if err != nil {
		setLastError(fmt.Sprintf("Failed to count pending: %v", err))
		return nil
	}

	return marshalResponse(map[string]interface{}{
		"connected": monitor.IsConnected(context.Background()),
		"running":   engine.IsRunning(),
		"pending":   pending,
	})
}

//export StartAutoSync
// StartAutoSync arms the connectivity and timer triggers.
func StartAutoSync() {
	if engine != nil {
		engine.StartAutoSync(context.Background())
	}
}

//export StopAutoSync
// StopAutoSync disarms the automatic triggers. A running pass finishes.
func StopAutoSync() {
	if engine != nil {
		engine.StopAutoSync()
	}
}

// =====================================================
// Memory Management Helpers
// =====================================================

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

// marshalResponse serializes a value for the FFI boundary.
func marshalResponse(v interface{}) *C.char {
	data, err := json.Marshal(v)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

func main() {
	// Main entry point for shared library
	// Not used when loaded as library
}
