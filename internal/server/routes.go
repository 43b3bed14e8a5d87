package server

import "net/http"

// registerRoutes wires all HTTP endpoints.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Discovery
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleAuthorizationServerMetadata)
	mux.HandleFunc("/.well-known/oauth-protected-resource", s.handleProtectedResourceMetadata)
	mux.HandleFunc("/.well-known/mcp-config", s.handleMCPConfig)

	// OAuth
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/connect", s.handleConnect)
	mux.HandleFunc("/token", s.handleToken)

	// User-bound API keys
	mux.HandleFunc("/api-keys", s.handleApiKeysCreate)
	mux.HandleFunc("/api-keys/me", s.handleApiKeysMe)
	mux.HandleFunc("/api-keys/revoke", s.handleApiKeysRevoke)

	// Protected resource
	mux.HandleFunc("/mcp", s.handleMCP)

	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
}
