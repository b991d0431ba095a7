// Package server provides the HTTP API of the kestrel detection service:
// configuration, live annotated video, detection push and history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/server/api"
	"github.com/ayusman/kestrel/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Pipeline  api.Pipeline
	Frames    api.FrameSource
	Toggle    api.Toggle
	// Metrics serves the Prometheus exposition at /metrics.
	Metrics http.Handler
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	hub    *Hub
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		hub:    NewHub(),
		start:  time.Now(),
	}
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

// Hub returns the pipeline observer feeding the stream, snapshot and
// websocket endpoints.
func (s *Server) Hub() *Hub {
	return s.hub
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	s.mux.Handle("/api/stream", NewStreamHandler(s.hub))
	s.mux.Handle("/api/snapshot", NewSnapshotHandler(s.hub))
	s.mux.Handle("/api/detections", NewDetectionsHandler(s.hub))

	if p := s.config.Pipeline; p != nil {
		s.mux.Handle("/api/config", api.NewConfigHandler(p))
		s.mux.Handle("/api/reset", api.NewResetHandler(p))
		s.mux.Handle("/api/metrics/summary", api.NewMetricsSummaryHandler(p))

		if s.config.Frames != nil {
			s.mux.Handle("/api/exclusions/sample", api.NewExclusionHandler(p, s.config.Frames))
		}

		if s.config.Store != nil {
			presets := api.NewPresetHandler(s.config.Store, p)
			s.mux.Handle("/api/presets", presets)
			s.mux.Handle("/api/presets/", presets)
		}
	}

	if s.config.Toggle != nil {
		s.mux.Handle("/api/enabled", api.NewEnabledHandler(s.config.Toggle))
	}

	if s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status":  "ok",
		"uptime":  uptime.String(),
		"clients": s.hub.Clients(),
	}
	if s.config.Pipeline != nil {
		response["fps"] = s.config.Pipeline.Metrics().FPS
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns
// nil after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logging.Info(logging.Fields{"addr": ln.Addr().String()}, "HTTP server listening")

	err = s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
