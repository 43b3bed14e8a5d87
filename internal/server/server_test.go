package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/signalmesh/internal/app"
	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/ratelimit"
	"github.com/bobmcallan/signalmesh/internal/routing"
	"github.com/bobmcallan/signalmesh/internal/services/screener"
	"github.com/bobmcallan/signalmesh/internal/services/tenant"
	"github.com/bobmcallan/signalmesh/internal/vault"
)

// --- In-memory storage fixtures ---

type memOAuthStore struct {
	mu          sync.Mutex
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

func (s *memOAuthStore) SaveClient(ctx context.Context, client *models.OAuthClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ClientID] = client
	return nil
}

func (s *memOAuthStore) GetClient(ctx context.Context, clientID string) (*models.OAuthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return client, nil
}

func (s *memOAuthStore) SaveConnection(ctx context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = conn
	return nil
}

func (s *memOAuthStore) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return conn, nil
}

func (s *memOAuthStore) SaveAuthCode(ctx context.Context, code *models.AuthCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.CodeHash] = code
	return nil
}

func (s *memOAuthStore) RedeemAuthCode(ctx context.Context, codeHash, redirectURI, codeChallenge, clientID string, now time.Time) (*models.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[codeHash]
	if !ok || code.UsedAt != nil || !now.Before(code.ExpiresAt) ||
		code.RedirectURI != redirectURI || code.CodeChallenge != codeChallenge ||
		(code.ClientID != "" && code.ClientID != clientID) {
		return nil, interfaces.ErrCodeNotRedeemable
	}
	prior := *code
	usedAt := now
	code.UsedAt = &usedAt
	return &prior, nil
}

func (s *memOAuthStore) PurgeExpiredAuthCodes(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *memOAuthStore) SaveSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *memOAuthStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *memOAuthStore) RevokeSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	now := time.Now()
	session.RevokedAt = &now
	return nil
}

func (s *memOAuthStore) UpdateSessionLastUsed(ctx context.Context, id string, lastUsedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.LastUsedAt = &lastUsedAt
	}
	return nil
}

func (s *memOAuthStore) PurgeExpiredSessions(ctx context.Context) (int, error) {
	return 0, nil
}

type memTenantStore struct {
	mu      sync.Mutex
	configs map[string]*models.UserConfig
	keys    map[string]*models.ApiKey
}

func newMemTenantStore() *memTenantStore {
	return &memTenantStore{
		configs: make(map[string]*models.UserConfig),
		keys:    make(map[string]*models.ApiKey),
	}
}

func (s *memTenantStore) SaveUserConfig(ctx context.Context, cfg *models.UserConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
	return nil
}

func (s *memTenantStore) GetUserConfig(ctx context.Context, id string) (*models.UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (s *memTenantStore) RevokeUserConfig(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	now := time.Now()
	cfg.RevokedAt = &now
	return nil
}

func (s *memTenantStore) SaveApiKey(ctx context.Context, key *models.ApiKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}

func (s *memTenantStore) GetApiKeyByHash(ctx context.Context, keyHash string) (*models.ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.keys {
		if key.KeyHash == keyHash {
			copied := *key
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *memTenantStore) RevokeApiKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	now := time.Now()
	key.RevokedAt = &now
	return nil
}

func (s *memTenantStore) RevokeApiKeysByUserConfig(ctx context.Context, userConfigID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, key := range s.keys {
		if key.UserConfigID == userConfigID && key.RevokedAt == nil {
			key.RevokedAt = &now
		}
	}
	return nil
}

func (s *memTenantStore) UpdateApiKeyLastUsed(ctx context.Context, id string, lastUsedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.keys[id]; ok {
		key.LastUsedAt = &lastUsedAt
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

func (s *memStorage) OAuthStore() interfaces.OAuthStore   { return s.oauth }
func (s *memStorage) TenantStore() interfaces.TenantStore { return s.tenant }
func (s *memStorage) Close() error                        { return nil }

var _ interfaces.StorageManager = (*memStorage)(nil)

// --- Test server construction ---

func newTestServer(t *testing.T, mutate func(cfg *common.Config)) (*Server, *memStorage) {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Issuer = "https://mcp.test"
	cfg.Auth.RedirectAllowlist = []string{"https://example.com/cb"}
	if mutate != nil {
		mutate(cfg)
	}

	v, err := vault.New("test-master-key")
	require.NoError(t, err)

	logger := common.NewSilentLogger()
	storage := newMemStorage()
	routers := routing.NewRouterCache()

	a := &app.App{
		Config:      cfg,
		Logger:      logger,
		Storage:     storage,
		Vault:       v,
		Limiter:     ratelimit.NewLimiter(),
		Routers:     routers,
		Tenants:     tenant.NewService(storage, v, routers, cfg, logger),
		Screener:    screener.NewService(logger),
		StartupTime: time.Now(),
	}

	return NewServer(a), storage
}
