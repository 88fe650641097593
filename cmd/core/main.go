// Package main runs the NatureLog core daemon: it owns the local
// observation store, the offline-first sync engine, and the localhost
// HTTP surface (REST API plus WebSocket notifications) used by UI
// clients.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/naturelog/backend/internal/api"
	"github.com/naturelog/backend/internal/db"
	"github.com/naturelog/backend/internal/logging"
	"github.com/naturelog/backend/internal/media"
	"github.com/naturelog/backend/internal/notify"
	syncpkg "github.com/naturelog/backend/internal/sync"
)

// getenv returns the environment value or a fallback.
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getenvDuration parses a duration from the environment.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logging.Warn("Invalid duration in environment, using default",
			map[string]interface{}{"key": key, "value": v})
		return fallback
	}
	return d
}

func main() {
	logging.Init(os.Stdout, logging.LogLevel(getenv("NATURELOG_LOG_LEVEL", string(logging.LevelInfo))))

	dataDir := getenv("NATURELOG_DATA_DIR", "./data")
	remoteURL := getenv("NATURELOG_REMOTE_URL", "https://api.naturelog.app")
	listenAddr := getenv("NATURELOG_LISTEN_ADDR", "localhost:8090")

	database, err := db.Open(dataDir)
	if err != nil {
		logging.Error("Failed to open database", err, nil)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.NewMigrator(database.DB).Run(); err != nil {
		logging.Error("Failed to run migrations", err, nil)
		os.Exit(1)
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	photoStore, err := media.NewStore(filepath.Join(dataDir, "media"))
	if err != nil {
		logging.Error("Failed to open media store", err, nil)
		os.Exit(1)
	}

	remote := syncpkg.NewRemoteClient(&syncpkg.RemoteConfig{
		BaseURL:   remoteURL,
		AuthToken: os.Getenv("NATURELOG_AUTH_TOKEN"),
		Timeout:   getenvDuration("NATURELOG_PUSH_TIMEOUT", 30*time.Second),
	})

	probe := syncpkg.NewHTTPProbe(remote.HealthURL())
	monitor := syncpkg.NewConnectivityMonitor(probe, getenvDuration("NATURELOG_PROBE_INTERVAL", 30*time.Second))

	config := syncpkg.DefaultConfig()
	config.SyncInterval = getenvDuration("NATURELOG_SYNC_INTERVAL", config.SyncInterval)

	orchestrator := syncpkg.New(syncpkg.NewStoreTransport(repo, remote), monitor, config)
	orchestrator.SetRecorder(repo)

	hub := notify.NewHub()
	stopForward := notify.ForwardProgress(hub, orchestrator.Progress())
	defer stopForward()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"naturelog-core"}`))
	})
	api.NewObservationHandler(repo, photoStore).Register(mux)
	api.NewSyncHandler(repo, orchestrator, monitor).Register(mux)

	server := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		logging.Info("API and notification endpoint listening",
			map[string]interface{}{"addr": listenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed", err, nil)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchestrator.StartAutoSync(ctx)
	logging.Info("NatureLog core started",
		map[string]interface{}{"data_dir": dataDir, "remote": remoteURL})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("Shutting down", nil)
	orchestrator.StopAutoSync()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
