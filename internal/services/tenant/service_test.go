package tenant

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/routing"
	"github.com/bobmcallan/signalmesh/internal/vault"
)

// --- In-memory stores ---

type memOAuthStore struct {
	clients     map[string]*models.OAuthClient
	connections map[string]*models.Connection
	codes       map[string]*models.AuthCode
	sessions    map[string]*models.Session
}

func newMemOAuthStore() *memOAuthStore {
	return &memOAuthStore{
		clients:     make(map[string]*models.OAuthClient),
		connections: make(map[string]*models.Connection),
		codes:       make(map[string]*models.AuthCode),
		sessions:    make(map[string]*models.Session),
	}
}

func (m *memOAuthStore) SaveClient(_ context.Context, client *models.OAuthClient) error {
	m.clients[client.ClientID] = client
	return nil
}

func (m *memOAuthStore) GetClient(_ context.Context, clientID string) (*models.OAuthClient, error) {
	if c, ok := m.clients[clientID]; ok {
		return c, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memOAuthStore) SaveConnection(_ context.Context, conn *models.Connection) error {
	m.connections[conn.ID] = conn
	return nil
}

func (m *memOAuthStore) GetConnection(_ context.Context, id string) (*models.Connection, error) {
	if c, ok := m.connections[id]; ok {
		return c, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memOAuthStore) SaveAuthCode(_ context.Context, code *models.AuthCode) error {
	m.codes[code.CodeHash] = code
	return nil
}

func (m *memOAuthStore) RedeemAuthCode(_ context.Context, codeHash, redirectURI, codeChallenge, clientID string, now time.Time) (*models.AuthCode, error) {
	code, ok := m.codes[codeHash]
	if !ok || code.UsedAt != nil || !now.Before(code.ExpiresAt) ||
		code.RedirectURI != redirectURI || code.CodeChallenge != codeChallenge ||
		(code.ClientID != "" && code.ClientID != clientID) {
		return nil, interfaces.ErrCodeNotRedeemable
	}
	before := *code
	used := now
	code.UsedAt = &used
	return &before, nil
}

func (m *memOAuthStore) PurgeExpiredAuthCodes(_ context.Context) (int, error) { return 0, nil }

func (m *memOAuthStore) SaveSession(_ context.Context, session *models.Session) error {
	m.sessions[session.ID] = session
	return nil
}

func (m *memOAuthStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memOAuthStore) RevokeSession(_ context.Context, id string) error {
	if s, ok := m.sessions[id]; ok && s.RevokedAt == nil {
		now := time.Now()
		s.RevokedAt = &now
	}
	return nil
}

func (m *memOAuthStore) UpdateSessionLastUsed(_ context.Context, id string, lastUsedAt time.Time) error {
	if s, ok := m.sessions[id]; ok {
		s.LastUsedAt = &lastUsedAt
	}
	return nil
}

func (m *memOAuthStore) PurgeExpiredSessions(_ context.Context) (int, error) { return 0, nil }

type memTenantStore struct {
	mu      sync.Mutex
	configs map[string]*models.UserConfig
	keys    map[string]*models.ApiKey // by key hash
}

func newMemTenantStore() *memTenantStore {
	return &memTenantStore{
		configs: make(map[string]*models.UserConfig),
		keys:    make(map[string]*models.ApiKey),
	}
}

func (m *memTenantStore) SaveUserConfig(_ context.Context, cfg *models.UserConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID] = cfg
	return nil
}

func (m *memTenantStore) GetUserConfig(_ context.Context, id string) (*models.UserConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.configs[id]; ok {
		return c, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memTenantStore) RevokeUserConfig(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.configs[id]; ok && c.RevokedAt == nil {
		now := time.Now()
		c.RevokedAt = &now
	}
	return nil
}

func (m *memTenantStore) SaveApiKey(_ context.Context, key *models.ApiKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.KeyHash] = key
	return nil
}

func (m *memTenantStore) GetApiKeyByHash(_ context.Context, keyHash string) (*models.ApiKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[keyHash]; ok {
		return k, nil
	}
	return nil, interfaces.ErrNotFound
}

func (m *memTenantStore) RevokeApiKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id && k.RevokedAt == nil {
			now := time.Now()
			k.RevokedAt = &now
		}
	}
	return nil
}

func (m *memTenantStore) RevokeApiKeysByUserConfig(_ context.Context, userConfigID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.UserConfigID == userConfigID && k.RevokedAt == nil {
			now := time.Now()
			k.RevokedAt = &now
		}
	}
	return nil
}

func (m *memTenantStore) UpdateApiKeyLastUsed(_ context.Context, id string, lastUsedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id {
			k.LastUsedAt = &lastUsedAt
		}
	}
	return nil
}

type memStorage struct {
	oauth  *memOAuthStore
	tenant *memTenantStore
}

func newMemStorage() *memStorage {
	return &memStorage{oauth: newMemOAuthStore(), tenant: newMemTenantStore()}
}

func (m *memStorage) OAuthStore() interfaces.OAuthStore   { return m.oauth }
func (m *memStorage) TenantStore() interfaces.TenantStore { return m.tenant }
func (m *memStorage) Close() error                        { return nil }

var (
	_ interfaces.StorageManager = (*memStorage)(nil)
	_ interfaces.OAuthStore     = (*memOAuthStore)(nil)
	_ interfaces.TenantStore    = (*memTenantStore)(nil)
)

// --- Helpers ---

func newTestService(t *testing.T) (*Service, *memStorage) {
	t.Helper()
	v, err := vault.New("test-master-key")
	require.NoError(t, err)

	storage := newMemStorage()
	svc := NewService(storage, v, routing.NewRouterCache(), common.NewDefaultConfig(), common.NewSilentLogger())
	return svc, storage
}

// --- Tests ---

func TestEncryptDecryptConfigRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	cfg := models.TenantConfig{AlpacaAPIKey: "ak", AlpacaSecretKey: "as", PolygonAPIKey: "pk"}
	encrypted, err := svc.EncryptConfig(cfg)
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "ak")

	decrypted, err := svc.DecryptConfig(encrypted)
	require.NoError(t, err)
	assert.Equal(t, cfg, decrypted)
}

func TestCreateConnectionStoresCiphertextOnly(t *testing.T) {
	svc, storage := newTestService(t)

	conn, err := svc.CreateConnection(context.Background(), "My Broker", models.TenantConfig{AlpacaAPIKey: "secret-key"})
	require.NoError(t, err)
	assert.Equal(t, 1, conn.ConfigVersion)

	stored := storage.oauth.connections[conn.ID]
	require.NotNil(t, stored)
	assert.NotContains(t, stored.ConfigEncrypted, "secret-key")
}

func TestRouterForConnectionIsCached(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conn, err := svc.CreateConnection(ctx, "t", models.TenantConfig{PolygonAPIKey: "pk"})
	require.NoError(t, err)

	first, err := svc.RouterForConnection(ctx, conn.ID)
	require.NoError(t, err)
	second, err := svc.RouterForConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"polygon", "mock"}, first.ProviderNames())
}

func TestDefaultRouterIsShared(t *testing.T) {
	svc, _ := newTestService(t)

	first := svc.DefaultRouter()
	second := svc.DefaultRouter()
	assert.Same(t, first, second)
	assert.Same(t, first.Health(), second.Health())
}

func TestRouterForConnectionRebuildsOnVersionBump(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	conn, err := svc.CreateConnection(ctx, "t", models.TenantConfig{PolygonAPIKey: "pk"})
	require.NoError(t, err)

	first, err := svc.RouterForConnection(ctx, conn.ID)
	require.NoError(t, err)

	encrypted, err := svc.EncryptConfig(models.TenantConfig{FMPAPIKey: "fk"})
	require.NoError(t, err)
	stored := storage.oauth.connections[conn.ID]
	stored.ConfigEncrypted = encrypted
	stored.ConfigVersion = 2

	second, err := svc.RouterForConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"mock"}, second.ProviderNames())
	assert.NotNil(t, second.Screener())
}

func TestCreateUserConfigWithKeyFormat(t *testing.T) {
	svc, storage := newTestService(t)

	userCfg, rawKey, err := svc.CreateUserConfigWithKey(context.Background(), "self-service", models.TenantConfig{}, "203.0.113.7")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rawKey, ApiKeyPrefix))
	assert.Len(t, rawKey, len(ApiKeyPrefix)+64)

	stored := storage.tenant.keys[vault.HashToken(rawKey)]
	require.NotNil(t, stored)
	assert.Equal(t, userCfg.ID, stored.UserConfigID)
	assert.Equal(t, "203.0.113.7", stored.CreatedIP)
}

func TestValidateApiKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	userCfg, rawKey, err := svc.CreateUserConfigWithKey(ctx, "t", models.TenantConfig{}, "")
	require.NoError(t, err)

	key, gotCfg, err := svc.ValidateApiKey(ctx, rawKey)
	require.NoError(t, err)
	assert.Equal(t, userCfg.ID, gotCfg.ID)
	assert.Equal(t, userCfg.ID, key.UserConfigID)

	_, _, err = svc.ValidateApiKey(ctx, ApiKeyPrefix+strings.Repeat("0", 64))
	require.Error(t, err)
}

func TestValidateApiKeyRejectsRevokedKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, rawKey, err := svc.CreateUserConfigWithKey(ctx, "t", models.TenantConfig{}, "")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeApiKeyByRawKey(ctx, rawKey))

	_, _, err = svc.ValidateApiKey(ctx, rawKey)
	require.Error(t, err)
}

func TestRevokeUserConfigCascades(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	userCfg, rawKey, err := svc.CreateUserConfigWithKey(ctx, "t", models.TenantConfig{}, "")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeUserConfig(ctx, userCfg.ID))

	_, _, err = svc.ValidateApiKey(ctx, rawKey)
	require.Error(t, err)

	_, err = svc.RouterForUserConfig(ctx, userCfg.ID)
	require.Error(t, err)
}
