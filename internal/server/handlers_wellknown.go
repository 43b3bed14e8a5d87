package server

import "net/http"

// handleAuthorizationServerMetadata handles GET /.well-known/oauth-authorization-server (RFC 8414).
func (s *Server) handleAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	issuer := s.app.Config.Issuer
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/connect",
		"token_endpoint":                        issuer + "/token",
		"registration_endpoint":                 issuer + "/register",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none"},
	})
}

// handleProtectedResourceMetadata handles GET /.well-known/oauth-protected-resource (RFC 9728).
func (s *Server) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	issuer := s.app.Config.Issuer
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"resource":                 issuer + "/mcp",
		"authorization_servers":    []string{issuer},
		"bearer_methods_supported": []string{"header"},
	})
}

// handleMCPConfig handles GET /.well-known/mcp-config: a convenience
// document for MCP clients that autodiscover the endpoint, including the
// tenant configuration fields the connect form accepts.
func (s *Server) handleMCPConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	issuer := s.app.Config.Issuer
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"mcp_endpoint": issuer + "/mcp",
		"transport":    "streamable-http",
		"authorization": map[string]interface{}{
			"type":     "oauth2",
			"metadata": issuer + "/.well-known/oauth-authorization-server",
		},
		"config_fields": []map[string]interface{}{
			{"name": "ALPACA_API_KEY", "secret": true},
			{"name": "ALPACA_SECRET_KEY", "secret": true},
			{"name": "POLYGON_API_KEY", "secret": true},
			{"name": "FMP_API_KEY", "secret": true},
			{"name": "FINNHUB_API_KEY", "secret": true},
			{"name": "ENABLE_CACHING", "secret": false},
			{"name": "CACHE_TTL", "secret": false},
		},
	})
}
