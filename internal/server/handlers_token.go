package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/vault"
)

const (
	tokenRateLimit  = 20
	tokenRateWindow = time.Minute
)

// handleToken handles POST /token: authorization code exchange. The code
// is redeemed atomically, with the redirect, PKCE, and client checks part
// of the redemption itself: concurrent exchanges of the same code produce
// exactly one session, and a failed attempt leaves the code redeemable.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.app.Limiter.Allow("token:"+clientIP(r), tokenRateLimit, tokenRateWindow) {
		writeDomainError(w, common.NewRateLimitError("token exchange"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if grantType := r.PostFormValue("grant_type"); grantType != "authorization_code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "only authorization_code is supported")
		return
	}

	code := r.PostFormValue("code")
	verifier := r.PostFormValue("code_verifier")
	redirectURI := r.PostFormValue("redirect_uri")
	clientID := r.PostFormValue("client_id")
	if code == "" || verifier == "" || redirectURI == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code, code_verifier and redirect_uri are required")
		return
	}

	now := time.Now()
	authCode, err := s.app.Storage.OAuthStore().RedeemAuthCode(r.Context(),
		vault.HashToken(code), redirectURI, vault.ComputeCodeChallenge(verifier), clientID, now)
	if err != nil {
		if errors.Is(err, interfaces.ErrCodeNotRedeemable) {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid, expired, already used, or does not match the token request")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to redeem authorization code")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	secret, err := vault.GenerateRandomString(32)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate session secret")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	sessionTTL := s.app.Config.Auth.GetSessionTTL()
	session := &models.Session{
		ID:           uuid.NewString(),
		ConnectionID: authCode.ConnectionID,
		TokenHash:    vault.HashToken(secret),
		ExpiresAt:    now.Add(sessionTTL),
		CreatedAt:    now,
	}
	if err := s.app.Storage.OAuthStore().SaveSession(r.Context(), session); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save session")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Str("connection_id", session.ConnectionID).
		Msg("Session issued")

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": session.ID + ":" + secret,
		"token_type":   "Bearer",
		"expires_in":   int(sessionTTL.Seconds()),
	})
}
