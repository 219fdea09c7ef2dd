package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/metrics"
	"github.com/cuemby/gwsync/pkg/types"
	"github.com/rs/zerolog"
)

// EngineStatus is the view of the reconciliation engine served by /snapshot
type EngineStatus interface {
	Snapshot() *types.Snapshot
	Reachable() bool
	KnownKeys() []string
}

// HealthServer provides the HTTP status endpoints
type HealthServer struct {
	engine EngineStatus
	mux    *http.ServeMux
	server *http.Server
	logger zerolog.Logger
}

// NewHealthServer creates a new status HTTP server
func NewHealthServer(engine EngineStatus) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		engine: engine,
		mux:    mux,
		logger: log.WithComponent("api"),
	}
	hs.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Register endpoints
	mux.HandleFunc("/health", getOnly(metrics.HealthHandler()))
	mux.HandleFunc("/ready", getOnly(metrics.ReadyHandler()))
	mux.HandleFunc("/live", getOnly(metrics.LivenessHandler()))
	mux.HandleFunc("/snapshot", getOnly(hs.snapshotHandler))
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start listens on addr and serves until Shutdown is called
func (hs *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return hs.Serve(lis)
}

// Serve serves on an existing listener until Shutdown is called. After
// Shutdown it closes lis and returns immediately.
func (hs *HealthServer) Serve(lis net.Listener) error {
	hs.logger.Info().Str("addr", lis.Addr().String()).Msg("Status server listening")
	if err := hs.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}

// SnapshotResponse represents the /snapshot response
type SnapshotResponse struct {
	CachedAt   time.Time    `json:"cached_at"`
	AgeSeconds float64      `json:"age_seconds"`
	Reachable  bool         `json:"registry_reachable"`
	KnownKeys  int          `json:"known_keys"`
	State      *types.State `json:"state"`
}

// ErrorResponse is returned with non-2xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
}

// snapshotHandler implements the /snapshot endpoint
func (hs *HealthServer) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap := hs.engine.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no state computed yet"})
		return
	}

	writeJSON(w, http.StatusOK, SnapshotResponse{
		CachedAt:   snap.CachedAt,
		AgeSeconds: time.Since(snap.CachedAt).Seconds(),
		Reachable:  hs.engine.Reachable(),
		KnownKeys:  len(hs.engine.KnownKeys()),
		State:      snap.State,
	})
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
