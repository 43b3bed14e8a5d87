// Package server implements the HTTP surface: OAuth endpoints, API key
// management, and the authenticated MCP entry point.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bobmcallan/signalmesh/internal/app"
	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/routing"
)

// Server wraps the HTTP server and application reference.
type Server struct {
	app    *app.App
	server *http.Server
	logger *common.Logger

	// Per-router MCP handlers. Keyed by router identity so a rebuilt
	// router (config rotation, cache eviction) gets a fresh handler.
	mcpMu       sync.Mutex
	mcpHandlers map[*routing.Router]http.Handler
}

// NewServer creates the HTTP server.
func NewServer(a *app.App) *Server {
	s := &Server{
		app:         a,
		logger:      a.Logger,
		mcpHandlers: make(map[*routing.Router]http.Handler),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, a.Logger)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Str("issuer", s.app.Config.Issuer).
		Msg("Starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
