package server

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/signalmesh/internal/common"
)

const testRedirectURI = "https://example.com/cb"

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func registerClient(t *testing.T, handler http.Handler, redirectURIs ...string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"client_name":   "test client",
		"redirect_uris": redirectURIs,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(string(payload)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	return decodeBody(t, rec)["client_id"].(string)
}

// authorize walks GET /connect then POST /connect and returns the issued code.
func authorize(t *testing.T, handler http.Handler, clientID, redirectURI, state, challenge string) string {
	t.Helper()

	params := url.Values{
		"redirect_uri":          {redirectURI},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	if clientID != "" {
		params.Set("client_id", clientID)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/connect?"+params.Encode(), nil)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code, getRec.Body.String())

	cookies := getRec.Result().Cookies()
	require.NotEmpty(t, cookies)
	csrf := cookies[0].Value

	form := url.Values{
		"redirect_uri":          {redirectURI},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"csrf_token":            {csrf},
		"connection_name":       {"test tenant"},
		"alpaca_api_key":        {"ak-test"},
		"alpaca_secret_key":     {"sk-test"},
	}
	if clientID != "" {
		form.Set("client_id", clientID)
	}

	postReq := httptest.NewRequest(http.MethodPost, "/connect", strings.NewReader(form.Encode()))
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postReq.AddCookie(cookies[0])
	postRec := httptest.NewRecorder()
	handler.ServeHTTP(postRec, postReq)
	require.Equal(t, http.StatusFound, postRec.Code, postRec.Body.String())

	location, err := url.Parse(postRec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, state, location.Query().Get("state"))

	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func exchangeToken(handler http.Handler, code, verifier, redirectURI, clientID string) *httptest.ResponseRecorder {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {redirectURI},
	}
	if clientID != "" {
		form.Set("client_id", clientID)
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRegisterValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	cases := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing redirect_uris", map[string]interface{}{"client_name": "x"}},
		{"relative redirect_uri", map[string]interface{}{"redirect_uris": []string{"/cb"}}},
		{"non-http scheme", map[string]interface{}{"redirect_uris": []string{"ftp://example.com/cb"}}},
		{"grant_types without authorization_code", map[string]interface{}{
			"redirect_uris": []string{testRedirectURI},
			"grant_types":   []string{"client_credentials"},
		}},
		{"response_types without code", map[string]interface{}{
			"redirect_uris":  []string{testRedirectURI},
			"response_types": []string{"token"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := json.Marshal(tc.payload)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(string(payload)))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_client_metadata", decodeBody(t, rec)["error"])
		})
	}
}

func TestRegisterRejectsTooManyRedirectURIs(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	uris := make([]string, 21)
	for i := range uris {
		uris[i] = fmt.Sprintf("https://example.com/cb/%d", i)
	}
	payload, err := json.Marshal(map[string]interface{}{"redirect_uris": uris})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(string(payload)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_client_metadata", decodeBody(t, rec)["error"])
}

func TestConnectRejectsRedirectOutsideAllowlist(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	params := url.Values{
		"redirect_uri":          {"https://evil.example.net/cb"},
		"state":                 {"s1"},
		"code_challenge":        {pkceChallenge("v")},
		"code_challenge_method": {"S256"},
	}
	req := httptest.NewRequest(http.MethodGet, "/connect?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectEmptyAllowlistRejectsEverything(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *common.Config) {
		cfg.Auth.RedirectAllowlist = nil
	})

	params := url.Values{
		"redirect_uri":          {testRedirectURI},
		"state":                 {"s1"},
		"code_challenge":        {pkceChallenge("v")},
		"code_challenge_method": {"S256"},
	}
	req := httptest.NewRequest(http.MethodGet, "/connect?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectPrefixAllowlistMode(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *common.Config) {
		cfg.Auth.RedirectAllowlist = []string{"https://example.com/"}
		cfg.Auth.RedirectAllowlistMode = "prefix"
	})

	params := url.Values{
		"redirect_uri":          {"https://example.com/deep/callback"},
		"state":                 {"s1"},
		"code_challenge":        {pkceChallenge("v")},
		"code_challenge_method": {"S256"},
	}
	req := httptest.NewRequest(http.MethodGet, "/connect?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectRequiresPKCE(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for name, overrides := range map[string]url.Values{
		"missing challenge": {"code_challenge_method": {"S256"}},
		"plain method":      {"code_challenge": {pkceChallenge("v")}, "code_challenge_method": {"plain"}},
	} {
		t.Run(name, func(t *testing.T) {
			params := url.Values{
				"redirect_uri": {testRedirectURI},
				"state":        {"s1"},
			}
			for k, v := range overrides {
				params[k] = v
			}
			req := httptest.NewRequest(http.MethodGet, "/connect?"+params.Encode(), nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestConnectEnforcesClientRedirectBinding(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *common.Config) {
		cfg.Auth.RedirectAllowlist = []string{testRedirectURI, "https://other.example.com/cb"}
	})
	handler := srv.Handler()

	clientID := registerClient(t, handler, testRedirectURI)

	// Allowed by the operator allowlist but not registered for this client.
	params := url.Values{
		"redirect_uri":          {"https://other.example.com/cb"},
		"state":                 {"s1"},
		"code_challenge":        {pkceChallenge("v")},
		"code_challenge_method": {"S256"},
		"client_id":             {clientID},
	}
	req := httptest.NewRequest(http.MethodGet, "/connect?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectSubmitRejectsCSRFMismatch(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	params := url.Values{
		"redirect_uri":          {testRedirectURI},
		"state":                 {"s1"},
		"code_challenge":        {pkceChallenge("v")},
		"code_challenge_method": {"S256"},
	}
	getReq := httptest.NewRequest(http.MethodGet, "/connect?"+params.Encode(), nil)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	cookies := getRec.Result().Cookies()
	require.NotEmpty(t, cookies)

	form := url.Values{
		"redirect_uri":          {testRedirectURI},
		"state":                 {"s1"},
		"code_challenge":        {pkceChallenge("v")},
		"code_challenge_method": {"S256"},
		"csrf_token":            {"forged"},
	}
	postReq := httptest.NewRequest(http.MethodPost, "/connect", strings.NewReader(form.Encode()))
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postReq.AddCookie(cookies[0])
	postRec := httptest.NewRecorder()
	handler.ServeHTTP(postRec, postReq)

	assert.Equal(t, http.StatusForbidden, postRec.Code)
}

func TestTokenExchangeSucceedsOnce(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	verifier := "test-verifier-string-with-enough-entropy"
	code := authorize(t, handler, "", testRedirectURI, "xyz", pkceChallenge(verifier))

	rec := exchangeToken(handler, code, verifier, testRedirectURI, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := decodeBody(t, rec)
	assert.Equal(t, "Bearer", body["token_type"])
	token, ok := body["access_token"].(string)
	require.True(t, ok)
	assert.Contains(t, token, ":")

	// Second redemption of the same code must fail.
	again := exchangeToken(handler, code, verifier, testRedirectURI, "")
	assert.Equal(t, http.StatusBadRequest, again.Code)
	assert.Equal(t, "invalid_grant", decodeBody(t, again)["error"])
}

func TestTokenRejectsWrongVerifier(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	code := authorize(t, handler, "", testRedirectURI, "xyz", pkceChallenge("right-verifier"))

	rec := exchangeToken(handler, code, "wrong-verifier", testRedirectURI, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", decodeBody(t, rec)["error"])
}

func TestTokenRejectsRedirectMismatch(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *common.Config) {
		cfg.Auth.RedirectAllowlist = []string{testRedirectURI, "https://other.example.com/cb"}
	})
	handler := srv.Handler()

	verifier := "test-verifier"
	code := authorize(t, handler, "", testRedirectURI, "xyz", pkceChallenge(verifier))

	rec := exchangeToken(handler, code, verifier, "https://other.example.com/cb", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", decodeBody(t, rec)["error"])
}

func TestTokenFailedAttemptDoesNotBurnCode(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	verifier := "the-legitimate-verifier-0123456789"
	code := authorize(t, handler, "", testRedirectURI, "xyz", pkceChallenge(verifier))

	// A wrong-verifier attempt must fail without consuming the code.
	bad := exchangeToken(handler, code, "wrong-verifier", testRedirectURI, "")
	require.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "invalid_grant", decodeBody(t, bad)["error"])

	good := exchangeToken(handler, code, verifier, testRedirectURI, "")
	assert.Equal(t, http.StatusOK, good.Code, good.Body.String())
}

func TestTokenRejectsClientMismatch(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	clientID := registerClient(t, handler, testRedirectURI)
	verifier := "client-bound-verifier-0123456789"
	code := authorize(t, handler, clientID, testRedirectURI, "xyz", pkceChallenge(verifier))

	rec := exchangeToken(handler, code, verifier, testRedirectURI, "some-other-client")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", decodeBody(t, rec)["error"])

	// The mismatch must not have consumed the code.
	good := exchangeToken(handler, code, verifier, testRedirectURI, clientID)
	assert.Equal(t, http.StatusOK, good.Code, good.Body.String())
}

func TestTokenExchangeRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	var rec *httptest.ResponseRecorder
	for i := 0; i <= tokenRateLimit; i++ {
		rec = exchangeToken(handler, "no-such-code", "v", testRedirectURI, "")
	}
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestTokenRejectsUnsupportedGrantType(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	form := url.Values{"grant_type": {"client_credentials"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_grant_type", decodeBody(t, rec)["error"])
}

func TestAuthorizationCodeFlowEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	clientID := registerClient(t, handler, testRedirectURI)

	verifier := "end-to-end-verifier-0123456789abcdef"
	code := authorize(t, handler, clientID, testRedirectURI, "e2e-state", pkceChallenge(verifier))

	rec := exchangeToken(handler, code, verifier, testRedirectURI, clientID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decodeBody(t, rec)["access_token"].(string)

	// The bearer token must reach the protected resource.
	mcpReq := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	mcpReq.Header.Set("Content-Type", "application/json")
	mcpReq.Header.Set("Authorization", "Bearer "+token)
	mcpRec := httptest.NewRecorder()
	handler.ServeHTTP(mcpRec, mcpReq)

	assert.NotEqual(t, http.StatusUnauthorized, mcpRec.Code, mcpRec.Body.String())
}
