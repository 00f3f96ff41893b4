// Package server provides the self-hosted remote half of the sync
// protocol: an HTTP server exposing POST /api/sync and GET /api/health,
// applying client changes with the same last-write-wins arbitration the
// client uses.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: 8787).
	Port int

	// Token required as a bearer credential on every /api endpoint
	// except /api/health. Empty disables auth.
	Token string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8787,
		Logger: log.New(os.Stderr, "[server] ", log.LstdFlags),
	}
}

// Server hosts the sync endpoint over a reminder store.
type Server struct {
	addr     string
	token    string
	store    Store
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
	logger   *log.Logger
}

// New creates a sync server over the given store.
func New(store Store, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	return &Server{
		addr:   fmt.Sprintf(":%d", config.Port),
		token:  config.Token,
		store:  store,
		logger: config.Logger,
	}
}

// Handler returns the HTTP handler tree. Exposed separately so tests can
// mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sync", s.requireToken(s.handleSync))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return mux
}

// Start begins serving. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Sync server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	s.logger.Println("Sync server stopped")
	return nil
}

// requireToken enforces bearer-token auth when a token is configured.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+s.token {
				http.Error(w, `{"detail":"missing or invalid authorization header"}`,
					http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}
