package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/naturelog/backend/internal/db"
	apperrors "github.com/naturelog/backend/internal/errors"
	syncpkg "github.com/naturelog/backend/internal/sync"
)

// SyncHandler exposes sync status, manual triggers and pass history.
type SyncHandler struct {
	repo    *db.Repository
	engine  *syncpkg.Orchestrator
	monitor syncpkg.Connectivity
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(repo *db.Repository, engine *syncpkg.Orchestrator, monitor syncpkg.Connectivity) *SyncHandler {
	return &SyncHandler{repo: repo, engine: engine, monitor: monitor}
}

// Register mounts the sync routes on the mux.
func (h *SyncHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/sync/status", h.GetStatus)
	mux.HandleFunc("/api/sync/now", h.TriggerSync)
	mux.HandleFunc("/api/sync/reports", h.ListReports)
	mux.HandleFunc("/api/observations/{id}/sync", h.SyncObservation)
}

// GetStatus handles GET /api/sync/status
// Returns connectivity, whether a pass is in flight, the pending count
// and the most recent pass outcome.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := h.repo.CountPending()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"connected": h.monitor.IsConnected(r.Context()),
		"running":   h.engine.IsRunning(),
		"pending":   pending,
	}

	if reports, err := h.repo.ListSyncReports(1); err == nil && len(reports) > 0 {
		response["last_pass"] = reports[0]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// TriggerSync handles POST /api/sync/now
// Runs a full pass synchronously and returns its result. A pass already
// in flight yields 409; per-record failures are reported in the result
// body, not as an HTTP error.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.engine.IsRunning() {
		http.Error(w, "A sync pass is already running", http.StatusConflict)
		return
	}

	result, err := h.engine.RunSyncPass(r.Context())
	if err != nil {
		http.Error(w, "Sync failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"attempted":  result.TotalAttempted,
		"successful": result.Successful,
		"failed":     result.Failed,
		"failed_ids": result.FailedIDs,
		"errors":     result.Errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// SyncObservation handles POST /api/observations/{id}/sync
// Pushes a single record immediately, outside the batch machinery.
func (h *SyncHandler) SyncObservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	obs, err := h.repo.GetObservation(id)
	if err != nil {
		http.Error(w, "Observation not found", http.StatusNotFound)
		return
	}

	if err := h.engine.SyncOne(r.Context(), obs); err != nil {
		if apperrors.Is(err, apperrors.ErrSyncOffline) {
			http.Error(w, "Device is offline", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Sync failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "synced",
		"id":     obs.ID,
	})
}

// ListReports handles GET /api/sync/reports
func (h *SyncHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	reports, err := h.repo.ListSyncReports(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reports": reports,
	})
}
