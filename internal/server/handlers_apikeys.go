package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/services/tenant"
	"github.com/bobmcallan/signalmesh/internal/vault"
)

// handleApiKeysCreate handles POST /api-keys: self-service tenant creation
// with a first API key. The endpoint is hidden entirely unless user-bound
// key issuance is enabled.
func (s *Server) handleApiKeysCreate(w http.ResponseWriter, r *http.Request) {
	if !s.app.Config.UserBoundKeysEnabled() {
		http.NotFound(w, r)
		return
	}
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	ip := clientIP(r)
	limit := s.app.Config.Auth.APIKeyRateLimit
	window := time.Duration(s.app.Config.Auth.APIKeyWindowSeconds) * time.Second
	if !s.app.Limiter.Allow("api-keys:"+ip, limit, window) {
		s.logger.Warn().Str("ip", ip).Msg("API key issuance rate limit exceeded")
		writeDomainError(w, common.NewRateLimitError("key issuance"))
		return
	}

	var req struct {
		Name   string              `json:"name"`
		Config models.TenantConfig `json:"config"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	userCfg, rawKey, err := s.app.Tenants.CreateUserConfigWithKey(r.Context(), req.Name, req.Config, ip)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create user config")
		WriteError(w, http.StatusInternalServerError, "failed to issue API key")
		return
	}

	key, err := s.app.Storage.TenantStore().GetApiKeyByHash(r.Context(), vault.HashToken(rawKey))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load issued API key")
		WriteError(w, http.StatusInternalServerError, "failed to issue API key")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"apiKey":       rawKey,
		"keyId":        key.ID,
		"userConfigId": userCfg.ID,
	})
}

// handleApiKeysMe handles GET /api-keys/me: metadata about the presented key.
func (s *Server) handleApiKeysMe(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	rawKey, ok := apiKeyFromRequest(r)
	if !ok {
		writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "API key required")
		return
	}

	key, userCfg, err := s.app.Tenants.ValidateApiKey(r.Context(), rawKey)
	if err != nil {
		writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "invalid or revoked API key")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"keyId":        key.ID,
		"userConfigId": userCfg.ID,
		"name":         userCfg.Name,
		"createdAt":    key.CreatedAt,
		"lastUsedAt":   key.LastUsedAt,
	})
}

// handleApiKeysRevoke handles POST /api-keys/revoke. Presenting the key is
// the authorization to revoke it.
func (s *Server) handleApiKeysRevoke(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	rawKey, ok := apiKeyFromRequest(r)
	if !ok {
		writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "API key required")
		return
	}

	if err := s.app.Tenants.RevokeApiKeyByRawKey(r.Context(), rawKey); err != nil {
		writeBearerChallenge(w, s.app.Config.Issuer, "invalid_token", "invalid or revoked API key")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// apiKeyFromRequest extracts a user-bound API key from the Authorization
// header. The key format is enforced by its prefix.
func apiKeyFromRequest(r *http.Request) (string, bool) {
	token := bearerToken(r)
	if !strings.HasPrefix(token, tenant.ApiKeyPrefix) {
		return "", false
	}
	return token, true
}

// bearerToken returns the Authorization header's bearer value, or "".
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
