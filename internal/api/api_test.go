// Package api tests for the localhost REST surface.
// These tests run against a real SQLite repository in a temp directory.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/naturelog/backend/internal/db"
	"github.com/naturelog/backend/internal/media"
	"github.com/naturelog/backend/internal/models"
	syncpkg "github.com/naturelog/backend/internal/sync"
)

// fakeConnectivity reports a fixed connectivity state.
type fakeConnectivity struct {
	online bool
}

func (f *fakeConnectivity) IsConnected(ctx context.Context) bool {
	return f.online
}

func (f *fakeConnectivity) Changes() (<-chan bool, func()) {
	return make(chan bool), func() {}
}

// repoTransport pushes into an in-memory remote map, backed by the real
// repository for pending reads and bookkeeping.
type repoTransport struct {
	repo    *db.Repository
	pushed  []string
	pushErr error
}

func (t *repoTransport) PendingRecords(ctx context.Context) ([]*models.Observation, error) {
	return t.repo.PendingObservations()
}

func (t *repoTransport) Push(ctx context.Context, obs *models.Observation) error {
	if t.pushErr != nil {
		return t.pushErr
	}
	t.pushed = append(t.pushed, obs.ID.String())
	return nil
}

func (t *repoTransport) MarkSynced(ctx context.Context, id string) error {
	return t.repo.MarkSynced(id)
}

// testEnv bundles the wired API surface for a test.
type testEnv struct {
	mux       *http.ServeMux
	repo      *db.Repository
	store     *media.Store
	transport *repoTransport
	monitor   *fakeConnectivity
}

// setupTestEnv wires handlers against a real temp-dir repository.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.NewMigrator(database.DB).Run(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })

	store, err := media.NewStore(filepath.Join(t.TempDir(), "media"))
	if err != nil {
		t.Fatalf("Failed to create media store: %v", err)
	}

	transport := &repoTransport{repo: repo}
	monitor := &fakeConnectivity{online: true}

	config := syncpkg.DefaultConfig()
	config.InitialDelay = 0
	engine := syncpkg.New(transport, monitor, config)
	engine.SetRecorder(repo)

	mux := http.NewServeMux()
	NewObservationHandler(repo, store).Register(mux)
	NewSyncHandler(repo, engine, monitor).Register(mux)

	return &testEnv{mux: mux, repo: repo, store: store, transport: transport, monitor: monitor}
}

// do runs one request through the mux and returns the recorder.
func (env *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	return w
}

// createObservation inserts a record through the API and returns its ID.
func (env *testEnv) createObservation(t *testing.T, species string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]interface{}{
		"species":     species,
		"latitude":    47.36,
		"longitude":   8.54,
		"observed_at": 1700000000,
	})
	w := env.do(http.MethodPost, "/api/observations", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create returned status %d: %s", w.Code, w.Body.String())
	}

	var obs models.Observation
	if err := json.NewDecoder(w.Body).Decode(&obs); err != nil {
		t.Fatalf("Failed to decode create response: %v", err)
	}
	return obs.ID.String()
}

// jpegPayload returns bytes with a valid JPEG magic number.
func jpegPayload() []byte {
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	return append(payload, bytes.Repeat([]byte{0x42}, 64)...)
}

// =====================================================
// Observation Endpoints
// =====================================================

// TestCreateObservation verifies creation and the born-pending state.
func TestCreateObservation(t *testing.T) {
	env := setupTestEnv(t)

	id := env.createObservation(t, "Strix aluco")

	obs, err := env.repo.GetObservation(id)
	if err != nil {
		t.Fatalf("created observation not in repository: %v", err)
	}
	if !obs.PendingSync {
		t.Error("new observation not flagged pending")
	}
}

// TestCreateObservation_validation verifies input rejection.
func TestCreateObservation_validation(t *testing.T) {
	env := setupTestEnv(t)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing species", map[string]interface{}{"latitude": 1.0}},
		{"latitude out of range", map[string]interface{}{"species": "x", "latitude": 91.0}},
		{"longitude out of range", map[string]interface{}{"species": "x", "longitude": -181.0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			w := env.do(http.MethodPost, "/api/observations", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

// TestGetObservation_notFound verifies the 404 path.
func TestGetObservation_notFound(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/api/observations/missing-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// TestUpdateObservation verifies a partial update re-flags the record.
func TestUpdateObservation(t *testing.T) {
	env := setupTestEnv(t)
	id := env.createObservation(t, "Strix aluco")

	if err := env.repo.MarkSynced(id); err != nil {
		t.Fatalf("Failed to mark synced: %v", err)
	}

	body, _ := json.Marshal(map[string]interface{}{"notes": "heard calling at dusk"})
	w := env.do(http.MethodPut, "/api/observations/"+id, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	obs, err := env.repo.GetObservation(id)
	if err != nil {
		t.Fatalf("Failed to reload observation: %v", err)
	}
	if obs.Notes != "heard calling at dusk" {
		t.Errorf("notes = %q, want updated value", obs.Notes)
	}
	if obs.Species != "Strix aluco" {
		t.Errorf("species = %q, unexpectedly changed", obs.Species)
	}
	if !obs.PendingSync {
		t.Error("updated observation not re-flagged pending")
	}
}

// TestDeleteObservation verifies deletion returns 204 and removes the row.
func TestDeleteObservation(t *testing.T) {
	env := setupTestEnv(t)
	id := env.createObservation(t, "Strix aluco")

	w := env.do(http.MethodDelete, "/api/observations/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	if w := env.do(http.MethodGet, "/api/observations/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("deleted observation still retrievable, status = %d", w.Code)
	}
}

// TestListObservations verifies pagination shape and pending count.
func TestListObservations(t *testing.T) {
	env := setupTestEnv(t)
	env.createObservation(t, "Strix aluco")
	env.createObservation(t, "Milvus milvus")

	w := env.do(http.MethodGet, "/api/observations?per_page=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var response struct {
		Items   []models.Observation `json:"items"`
		Pending int                  `json:"pending"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Items) != 1 {
		t.Errorf("items = %d, want 1 with per_page=1", len(response.Items))
	}
	if response.Pending != 2 {
		t.Errorf("pending = %d, want 2", response.Pending)
	}
}

// TestAttachMedia verifies a photo upload lands in the store and flags
// the record for sync.
func TestAttachMedia(t *testing.T) {
	env := setupTestEnv(t)
	id := env.createObservation(t, "Strix aluco")
	if err := env.repo.MarkSynced(id); err != nil {
		t.Fatalf("Failed to mark synced: %v", err)
	}

	w := env.do(http.MethodPost, "/api/observations/"+id+"/media", jpegPayload())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		MIMEType string `json:"mime_type"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.MIMEType != "image/jpeg" {
		t.Errorf("mime type = %s, want image/jpeg", response.MIMEType)
	}

	obs, err := env.repo.GetObservation(id)
	if err != nil {
		t.Fatalf("Failed to reload observation: %v", err)
	}
	if !obs.HasLocalMedia() {
		t.Error("observation has no local media after upload")
	}
	if !obs.PendingSync {
		t.Error("observation with new photo not re-flagged pending")
	}
}

// TestAttachMedia_rejectsNonImage verifies a 415 for non-photo payloads.
func TestAttachMedia_rejectsNonImage(t *testing.T) {
	env := setupTestEnv(t)
	id := env.createObservation(t, "Strix aluco")

	w := env.do(http.MethodPost, "/api/observations/"+id+"/media", []byte("just some text"))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", w.Code)
	}
}

// =====================================================
// Sync Endpoints
// =====================================================

// TestSyncStatus verifies the status payload fields.
func TestSyncStatus(t *testing.T) {
	env := setupTestEnv(t)
	env.createObservation(t, "Strix aluco")
	env.monitor.online = false

	w := env.do(http.MethodGet, "/api/sync/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["connected"] != false {
		t.Error("connected = true, want false")
	}
	if response["running"] != false {
		t.Error("running = true, want false")
	}
	if response["pending"] != float64(1) {
		t.Errorf("pending = %v, want 1", response["pending"])
	}
}

// TestTriggerSync verifies a manual pass drains the pending batch.
func TestTriggerSync(t *testing.T) {
	env := setupTestEnv(t)
	env.createObservation(t, "Strix aluco")
	env.createObservation(t, "Milvus milvus")

	w := env.do(http.MethodPost, "/api/sync/now", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["attempted"] != float64(2) || response["successful"] != float64(2) {
		t.Errorf("result = %v, want 2 attempted and 2 successful", response)
	}

	pending, err := env.repo.CountPending()
	if err != nil {
		t.Fatalf("Failed to count pending: %v", err)
	}
	if pending != 0 {
		t.Errorf("pending = %d after pass, want 0", pending)
	}
}

// TestTriggerSync_recordsReport verifies a pass shows up in the report
// history endpoint.
func TestTriggerSync_recordsReport(t *testing.T) {
	env := setupTestEnv(t)
	env.createObservation(t, "Strix aluco")

	if w := env.do(http.MethodPost, "/api/sync/now", nil); w.Code != http.StatusOK {
		t.Fatalf("trigger status = %d", w.Code)
	}

	w := env.do(http.MethodGet, "/api/sync/reports", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reports status = %d", w.Code)
	}

	var response struct {
		Reports []models.SyncReport `json:"reports"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(response.Reports))
	}
	if response.Reports[0].Succeeded != 1 {
		t.Errorf("report succeeded = %d, want 1", response.Reports[0].Succeeded)
	}
}

// TestSyncObservation_offline verifies the single-record sync refuses
// to run while offline.
func TestSyncObservation_offline(t *testing.T) {
	env := setupTestEnv(t)
	id := env.createObservation(t, "Strix aluco")
	env.monitor.online = false

	w := env.do(http.MethodPost, "/api/observations/"+id+"/sync", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if len(env.transport.pushed) != 0 {
		t.Error("offline sync still pushed to the transport")
	}
}

// TestSyncObservation verifies the single-record sync path.
func TestSyncObservation(t *testing.T) {
	env := setupTestEnv(t)
	id := env.createObservation(t, "Strix aluco")

	w := env.do(http.MethodPost, "/api/observations/"+id+"/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	obs, err := env.repo.GetObservation(id)
	if err != nil {
		t.Fatalf("Failed to reload observation: %v", err)
	}
	if obs.PendingSync {
		t.Error("observation still pending after explicit sync")
	}
}

// TestMethodNotAllowed verifies the collection route rejects stray verbs.
func TestMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	if w := env.do(http.MethodPatch, "/api/observations", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/sync/now", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
