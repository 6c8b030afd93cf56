// Package api implements the HTTP surface: the chat endpoint, the
// session directory, and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwhitley/parley/internal/buildinfo"
	"github.com/dwhitley/parley/internal/capability"
	"github.com/dwhitley/parley/internal/engine"
	"github.com/dwhitley/parley/internal/llm"
	"github.com/dwhitley/parley/internal/session"
	"github.com/dwhitley/parley/internal/web"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address      string
	port         int
	engine       *engine.Engine
	store        *session.Store
	locks        *session.Locks
	registry     *capability.Registry
	client       llm.Client
	defaultLimit int
	logger       *slog.Logger
	server       *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, eng *engine.Engine, store *session.Store, registry *capability.Registry, client llm.Client, defaultLimit int, logger *slog.Logger) *Server {
	if defaultLimit <= 0 {
		defaultLimit = engine.DefaultRecursionLimit
	}
	return &Server{
		address:      address,
		port:         port,
		engine:       eng,
		store:        store,
		locks:        session.NewLocks(),
		registry:     registry,
		client:       client,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// Routes builds the request mux. Exposed separately so tests can drive
// the handlers without a listening socket.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /v1/chat", s.handleChat)

	// Session directory
	mux.HandleFunc("GET /v1/sessions", s.handleSessionList)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleSessionDelete)
	mux.HandleFunc("GET /v1/sessions/{id}/export", s.handleSessionExport)

	// Introspection
	mux.HandleFunc("GET /v1/capabilities", s.handleCapabilities)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	// Chat web UI
	web.RegisterRoutes(mux)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // turns can run long
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// errorResponse writes the error envelope. extra keys are merged into
// the error object, letting handlers attach context like session_id.
func (s *Server) errorResponse(w http.ResponseWriter, code int, errType, message string, extra map[string]any) {
	body := map[string]any{
		"message": message,
		"type":    errType,
		"code":    code,
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"error": body}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Parley",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := "ok"
	if s.client != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx); err != nil {
			backend = "unreachable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":        "healthy",
		"model_backend": backend,
	}, s.logger)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	type capInfo struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	}

	var caps []capInfo
	for _, c := range s.registry.List() {
		caps = append(caps, capInfo{
			Name:        c.Name,
			Description: c.Description,
			Parameters:  c.Parameters,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"capabilities": caps,
		"count":        len(caps),
	}, s.logger)
}
