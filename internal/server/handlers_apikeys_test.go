package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/services/tenant"
)

func withUserBoundKeys(cfg *common.Config) {
	cfg.Auth.APIKeyMode = "user_bound"
}

func issueKey(t *testing.T, handler http.Handler) (apiKey, keyID string) {
	t.Helper()

	payload := `{"name":"self-service","config":{"POLYGON_API_KEY":"pk-test"}}`
	req := httptest.NewRequest(http.MethodPost, "/api-keys", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["apiKey"].(string), body["keyId"].(string)
}

func TestApiKeysHiddenWhenDisabled(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api-keys", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApiKeyIssueAndInspect(t *testing.T) {
	srv, _ := newTestServer(t, withUserBoundKeys)
	handler := srv.Handler()

	apiKey, keyID := issueKey(t, handler)
	assert.True(t, strings.HasPrefix(apiKey, tenant.ApiKeyPrefix))

	req := httptest.NewRequest(http.MethodGet, "/api-keys/me", nil)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, keyID, body["keyId"])
	assert.Equal(t, "self-service", body["name"])
}

func TestApiKeyInspectRequiresKey(t *testing.T) {
	srv, _ := newTestServer(t, withUserBoundKeys)

	req := httptest.NewRequest(http.MethodGet, "/api-keys/me", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "resource_metadata")
}

func TestApiKeyRevocation(t *testing.T) {
	srv, _ := newTestServer(t, withUserBoundKeys)
	handler := srv.Handler()

	apiKey, _ := issueKey(t, handler)

	revokeReq := httptest.NewRequest(http.MethodPost, "/api-keys/revoke", nil)
	revokeReq.Header.Set("Authorization", "Bearer "+apiKey)
	revokeRec := httptest.NewRecorder()
	handler.ServeHTTP(revokeRec, revokeReq)
	require.Equal(t, http.StatusOK, revokeRec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(revokeRec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])

	// The revoked key no longer authenticates.
	meReq := httptest.NewRequest(http.MethodGet, "/api-keys/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+apiKey)
	meRec := httptest.NewRecorder()
	handler.ServeHTTP(meRec, meReq)
	assert.Equal(t, http.StatusUnauthorized, meRec.Code)
}

func TestApiKeyIssuanceRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *common.Config) {
		withUserBoundKeys(cfg)
		cfg.Auth.APIKeyRateLimit = 2
		cfg.Auth.APIKeyWindowSeconds = 3600
	})
	handler := srv.Handler()

	issueKey(t, handler)
	issueKey(t, handler)

	req := httptest.NewRequest(http.MethodPost, "/api-keys", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
