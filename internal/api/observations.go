// Package api provides the localhost REST surface for the NatureLog
// core. The UI talks to these endpoints; everything remote goes through
// the sync engine, never through this package.
package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/naturelog/backend/internal/db"
	apperrors "github.com/naturelog/backend/internal/errors"
	"github.com/naturelog/backend/internal/media"
	"github.com/naturelog/backend/internal/models"
)

// maxPhotoBytes bounds a single photo upload.
const maxPhotoBytes = 32 << 20

// ObservationHandler handles observation CRUD and photo attachment.
type ObservationHandler struct {
	repo  *db.Repository
	store *media.Store
}

// NewObservationHandler creates a new ObservationHandler.
func NewObservationHandler(repo *db.Repository, store *media.Store) *ObservationHandler {
	return &ObservationHandler{repo: repo, store: store}
}

// Register mounts the observation routes on the mux.
func (h *ObservationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/observations", h.handleCollection)
	mux.HandleFunc("/api/observations/{id}", h.handleItem)
	mux.HandleFunc("/api/observations/{id}/media", h.AttachMedia)
}

// handleCollection dispatches GET /api/observations and POST /api/observations.
func (h *ObservationHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListObservations(w, r)
	case http.MethodPost:
		h.CreateObservation(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleItem dispatches GET/PUT/DELETE /api/observations/{id}.
func (h *ObservationHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetObservation(w, r)
	case http.MethodPut:
		h.UpdateObservation(w, r)
	case http.MethodDelete:
		h.DeleteObservation(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ListObservations handles GET /api/observations
func (h *ObservationHandler) ListObservations(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage

	items, err := h.repo.ListObservations(perPage, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	pending, err := h.repo.CountPending()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"items":    items,
		"page":     page,
		"per_page": perPage,
		"pending":  pending,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// CreateObservation handles POST /api/observations
func (h *ObservationHandler) CreateObservation(w http.ResponseWriter, r *http.Request) {
	var request struct {
		OwnerID    string  `json:"owner_id"`
		Species    string  `json:"species"`
		Notes      string  `json:"notes"`
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
		ObservedAt int64   `json:"observed_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if request.Species == "" {
		http.Error(w, "species is required", http.StatusBadRequest)
		return
	}
	if request.Latitude < -90 || request.Latitude > 90 {
		http.Error(w, "latitude must be between -90 and 90", http.StatusBadRequest)
		return
	}
	if request.Longitude < -180 || request.Longitude > 180 {
		http.Error(w, "longitude must be between -180 and 180", http.StatusBadRequest)
		return
	}
	if request.OwnerID == "" {
		request.OwnerID = "local"
	}

	obs := &models.Observation{
		OwnerID:    request.OwnerID,
		Species:    request.Species,
		Notes:      request.Notes,
		Latitude:   request.Latitude,
		Longitude:  request.Longitude,
		ObservedAt: request.ObservedAt,
	}

	if err := h.repo.CreateObservation(obs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(obs)
}

// GetObservation handles GET /api/observations/{id}
func (h *ObservationHandler) GetObservation(w http.ResponseWriter, r *http.Request) {
	obs, ok := h.loadObservation(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(obs)
}

// UpdateObservation handles PUT /api/observations/{id}
func (h *ObservationHandler) UpdateObservation(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Species    *string  `json:"species"`
		Notes      *string  `json:"notes"`
		Latitude   *float64 `json:"latitude"`
		Longitude  *float64 `json:"longitude"`
		ObservedAt *int64   `json:"observed_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	obs, ok := h.loadObservation(w, r)
	if !ok {
		return
	}

	if request.Species != nil {
		if *request.Species == "" {
			http.Error(w, "species cannot be empty", http.StatusBadRequest)
			return
		}
		obs.Species = *request.Species
	}
	if request.Notes != nil {
		obs.Notes = *request.Notes
	}
	if request.Latitude != nil {
		if *request.Latitude < -90 || *request.Latitude > 90 {
			http.Error(w, "latitude must be between -90 and 90", http.StatusBadRequest)
			return
		}
		obs.Latitude = *request.Latitude
	}
	if request.Longitude != nil {
		if *request.Longitude < -180 || *request.Longitude > 180 {
			http.Error(w, "longitude must be between -180 and 180", http.StatusBadRequest)
			return
		}
		obs.Longitude = *request.Longitude
	}
	if request.ObservedAt != nil {
		obs.ObservedAt = *request.ObservedAt
	}

	if err := h.repo.UpdateObservation(obs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(obs)
}

// DeleteObservation handles DELETE /api/observations/{id}
func (h *ObservationHandler) DeleteObservation(w http.ResponseWriter, r *http.Request) {
	obs, ok := h.loadObservation(w, r)
	if !ok {
		return
	}

	if err := h.repo.DeleteObservation(obs.ID.String()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Best-effort cleanup of a not-yet-uploaded photo
	if obs.HasLocalMedia() {
		h.store.Delete(obs.MediaPath)
	}

	w.WriteHeader(http.StatusNoContent)
}

// AttachMedia handles POST /api/observations/{id}/media
// The request body is the raw photo bytes; the type is sniffed from the
// content, never trusted from headers. Attaching a photo re-flags the
// observation pending so the next sync pass uploads it.
func (h *ObservationHandler) AttachMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	obs, ok := h.loadObservation(w, r)
	if !ok {
		return
	}

	result, err := h.store.Save(http.MaxBytesReader(w, r.Body, maxPhotoBytes))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrValidation) {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// A new photo supersedes any previously uploaded one
	obs.MediaPath = result.Path
	obs.MediaURL = ""

	if err := h.repo.UpdateObservation(obs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"id":           obs.ID,
		"content_hash": result.ContentHash,
		"size":         result.Size,
		"mime_type":    result.MIMEType,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// loadObservation fetches the record addressed by the path, writing the
// error response itself when the lookup fails.
func (h *ObservationHandler) loadObservation(w http.ResponseWriter, r *http.Request) (*models.Observation, bool) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "observation id missing", http.StatusBadRequest)
		return nil, false
	}

	obs, err := h.repo.GetObservation(id)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Observation not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}

	return obs, true
}
