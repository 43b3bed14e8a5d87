package server

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/vault"
)

const (
	csrfCookieName = "sm_csrf"
	csrfCookieTTL  = 600 // seconds

	connectRateLimit  = 20
	connectRateWindow = time.Minute
)

var connectTemplate = template.Must(template.New("connect").Parse(connectPageHTML))

type connectPageData struct {
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	ClientID            string
	CSRFToken           string
}

// handleConnect handles the authorization endpoint. GET renders the tenant
// configuration form; POST creates the connection and issues a code.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleConnectForm(w, r)
	case http.MethodPost:
		s.handleConnectSubmit(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleConnectForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")
	challenge := q.Get("code_challenge")
	method := q.Get("code_challenge_method")
	clientID := q.Get("client_id")

	if msg := s.validateAuthorizeParams(r, redirectURI, state, challenge, method, clientID); msg != "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	csrfToken, err := vault.GenerateRandomString(16)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate CSRF token")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    csrfToken,
		Path:     "/connect",
		MaxAge:   csrfCookieTTL,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := connectTemplate.Execute(w, connectPageData{
		RedirectURI:         redirectURI,
		State:               state,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ClientID:            clientID,
		CSRFToken:           csrfToken,
	}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render connect page")
	}
}

func (s *Server) handleConnectSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	redirectURI := r.PostFormValue("redirect_uri")
	state := r.PostFormValue("state")
	challenge := r.PostFormValue("code_challenge")
	method := r.PostFormValue("code_challenge_method")
	clientID := r.PostFormValue("client_id")

	if msg := s.validateAuthorizeParams(r, redirectURI, state, challenge, method, clientID); msg != "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || !vault.ConstantTimeCompare(cookie.Value, r.PostFormValue("csrf_token")) {
		writeOAuthError(w, http.StatusForbidden, "invalid_request", "CSRF token mismatch")
		return
	}

	ip := clientIP(r)
	if !s.app.Limiter.Allow("connect:"+ip, connectRateLimit, connectRateWindow) {
		s.logger.Warn().Str("ip", ip).Msg("Connect rate limit exceeded")
		writeDomainError(w, common.NewRateLimitError("authorization attempts"))
		return
	}

	cfg := tenantConfigFromForm(r)
	name := strings.TrimSpace(r.PostFormValue("connection_name"))
	if name == "" {
		name = "Connection " + time.Now().UTC().Format("2006-01-02 15:04")
	}

	connection, err := s.app.Tenants.CreateConnection(r.Context(), name, cfg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create connection")
		WriteError(w, http.StatusInternalServerError, "failed to create connection")
		return
	}

	code, err := vault.GenerateRandomString(32)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate authorization code")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	authCode := &models.AuthCode{
		CodeHash:            vault.HashToken(code),
		ConnectionID:        connection.ID,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		State:               state,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		ExpiresAt:           now.Add(s.app.Config.Auth.GetCodeTTL()),
		CreatedAt:           now,
	}
	if err := s.app.Storage.OAuthStore().SaveAuthCode(r.Context(), authCode); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save authorization code")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info().
		Str("connection_id", connection.ID).
		Str("client_id", clientID).
		Msg("Authorization code issued")

	target, _ := url.Parse(redirectURI)
	values := target.Query()
	values.Set("code", code)
	if state != "" {
		values.Set("state", state)
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// validateAuthorizeParams checks the authorization request parameters shared
// by GET and POST. Returns a human-readable message, empty when valid.
func (s *Server) validateAuthorizeParams(r *http.Request, redirectURI, state, challenge, method, clientID string) string {
	if redirectURI == "" {
		return "redirect_uri is required"
	}
	if state == "" {
		return "state is required"
	}
	if challenge == "" {
		return "code_challenge is required"
	}
	if method != "S256" {
		return "code_challenge_method must be S256"
	}
	if !redirectAllowed(redirectURI, s.app.Config.Auth.RedirectAllowlist, s.app.Config.Auth.RedirectAllowlistMode) {
		return "redirect_uri is not allowed"
	}
	if clientID != "" {
		client, err := s.app.Storage.OAuthStore().GetClient(r.Context(), clientID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return "unknown client_id"
			}
			s.logger.Error().Err(err).Msg("Failed to load OAuth client")
			return "unable to validate client"
		}
		if !contains(client.RedirectURIs, redirectURI) {
			return "redirect_uri is not registered for this client"
		}
	}
	return ""
}

// redirectAllowed checks the operator allowlist. An empty allowlist rejects
// every redirect URI.
func redirectAllowed(uri string, allowlist []string, mode string) bool {
	for _, allowed := range allowlist {
		if mode == "prefix" {
			if strings.HasPrefix(uri, allowed) {
				return true
			}
		} else if uri == allowed {
			return true
		}
	}
	return false
}

// tenantConfigFromForm extracts provider credentials and routing overrides
// from the submitted form. Empty fields stay zero so operator defaults apply.
func tenantConfigFromForm(r *http.Request) models.TenantConfig {
	cfg := models.TenantConfig{
		AlpacaAPIKey:    strings.TrimSpace(r.PostFormValue("alpaca_api_key")),
		AlpacaSecretKey: strings.TrimSpace(r.PostFormValue("alpaca_secret_key")),
		PolygonAPIKey:   strings.TrimSpace(r.PostFormValue("polygon_api_key")),
		FMPAPIKey:       strings.TrimSpace(r.PostFormValue("fmp_api_key")),
		FinnhubAPIKey:   strings.TrimSpace(r.PostFormValue("finnhub_api_key")),
	}
	if v := r.PostFormValue("enable_caching"); v != "" {
		enabled := v == "true" || v == "on" || v == "1"
		cfg.EnableCaching = &enabled
	}
	if v := r.PostFormValue("cache_ttl"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.CacheTTLSeconds = secs
		}
	}
	return cfg
}

const connectPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Connect - SignalMesh</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 560px; margin: 3rem auto; padding: 0 1rem; color: #1a1a2e; }
h1 { font-size: 1.4rem; }
label { display: block; margin-top: 1rem; font-weight: 600; font-size: 0.9rem; }
input[type=text], input[type=password] { width: 100%; padding: 0.5rem; margin-top: 0.25rem; border: 1px solid #ccc; border-radius: 4px; }
.hint { color: #666; font-size: 0.8rem; margin-top: 0.2rem; }
button { margin-top: 1.5rem; padding: 0.6rem 1.4rem; background: #16213e; color: #fff; border: none; border-radius: 4px; cursor: pointer; }
</style>
</head>
<body>
<h1>Connect your market data providers</h1>
<p>Credentials are encrypted at rest and used only to route your requests. Leave a field blank to fall back to the shared providers.</p>
<form method="POST" action="/connect">
<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
<input type="hidden" name="state" value="{{.State}}">
<input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
<input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
<input type="hidden" name="client_id" value="{{.ClientID}}">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>Connection name <input type="text" name="connection_name" placeholder="My workspace"></label>
<label>Alpaca API key <input type="password" name="alpaca_api_key" autocomplete="off"></label>
<label>Alpaca secret key <input type="password" name="alpaca_secret_key" autocomplete="off"></label>
<label>Polygon API key <input type="password" name="polygon_api_key" autocomplete="off"></label>
<label>FMP API key <input type="password" name="fmp_api_key" autocomplete="off"></label>
<label>Finnhub API key <input type="password" name="finnhub_api_key" autocomplete="off"></label>
<button type="submit">Authorize</button>
</form>
</body>
</html>
`
