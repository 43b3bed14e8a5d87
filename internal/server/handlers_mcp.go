package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/routing"
	"github.com/bobmcallan/signalmesh/internal/services/tenant"
	"github.com/bobmcallan/signalmesh/internal/vault"
)

const maxMCPHandlers = 512

// handleMCP is the protected resource entry point. It resolves the caller's
// credential to a tenant-scoped router in strict priority order: OAuth
// bearer session, user-bound API key, then legacy static key. Anything else
// gets a 401 with the discovery challenge.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "authorization required")
		return
	}

	var router *routing.Router
	switch {
	case strings.HasPrefix(token, tenant.ApiKeyPrefix):
		_, userCfg, err := s.app.Tenants.ValidateApiKey(r.Context(), token)
		if err != nil {
			writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "invalid or revoked API key")
			return
		}
		router, err = s.app.Tenants.RouterForUserConfig(r.Context(), userCfg.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("user_config_id", userCfg.ID).Msg("Failed to build router")
			WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}

	case strings.Contains(token, ":"):
		var ok bool
		router, ok = s.routerForSession(w, r, token)
		if !ok {
			return
		}

	default:
		if !s.matchesLegacyKey(token) {
			writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "invalid credential")
			return
		}
		router = s.app.Tenants.DefaultRouter()
	}

	s.mcpHandlerFor(router).ServeHTTP(w, r)
}

// routerForSession authenticates a composite "<id>:<secret>" bearer token.
// On failure it writes the 401 challenge and returns ok=false.
func (s *Server) routerForSession(w http.ResponseWriter, r *http.Request, token string) (*routing.Router, bool) {
	id, secret, _ := strings.Cut(token, ":")

	session, err := s.app.Storage.OAuthStore().GetSession(r.Context(), id)
	if err != nil {
		writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "invalid session")
		return nil, false
	}
	if !session.Usable(time.Now()) {
		writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "session expired or revoked")
		return nil, false
	}
	if !vault.ConstantTimeCompare(vault.HashToken(secret), session.TokenHash) {
		writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "invalid session")
		return nil, false
	}

	// Best effort, off the request path. Failures are logged and dropped.
	go s.recordSessionUsage(session.ID)

	router, err := s.app.Tenants.RouterForConnection(r.Context(), session.ConnectionID)
	if err != nil {
		s.logger.Error().Err(err).Str("connection_id", session.ConnectionID).Msg("Failed to build router")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return router, true
}

func (s *Server) recordSessionUsage(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.Storage.OAuthStore().UpdateSessionLastUsed(ctx, sessionID, time.Now()); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to record session usage")
	}
}

// matchesLegacyKey compares the token against every configured legacy key in
// constant time. Always scans the full list.
func (s *Server) matchesLegacyKey(token string) bool {
	matched := false
	for _, key := range s.app.Config.Auth.LegacyAPIKeys {
		if vault.ConstantTimeCompare(token, key) {
			matched = true
		}
	}
	return matched
}

// mcpHandlerFor returns the streamable HTTP handler for a router, building
// and caching it on first use. Handlers follow router identity, so a router
// rebuilt after a config change gets a fresh handler.
func (s *Server) mcpHandlerFor(router *routing.Router) http.Handler {
	s.mcpMu.Lock()
	defer s.mcpMu.Unlock()

	if handler, ok := s.mcpHandlers[router]; ok {
		return handler
	}

	// Stale entries accumulate as routers are rebuilt; reset wholesale
	// rather than tracking evictions.
	if len(s.mcpHandlers) >= maxMCPHandlers {
		s.mcpHandlers = make(map[*routing.Router]http.Handler)
	}

	mcpSrv := mcpserver.NewMCPServer(
		"signalmesh",
		common.GetVersion(),
		mcpserver.WithToolCapabilities(true),
	)
	registerTools(mcpSrv, router, s.app.Screener, s.logger)

	handler := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithStateLess(true),
	)
	s.mcpHandlers[router] = handler
	return handler
}
