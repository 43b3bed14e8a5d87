// Package tenant manages encrypted tenant configurations, router
// resolution, and the user-bound API key lifecycle.
package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/routing"
	"github.com/bobmcallan/signalmesh/internal/vault"
)

// ApiKeyPrefix marks raw user-bound API keys on the wire. Only the
// SHA-256 hash of the full key is ever stored.
const ApiKeyPrefix = "mcp_sk_"

// apiKeySecretBytes of randomness, hex-encoded to 64 characters.
const apiKeySecretBytes = 32

// Service resolves tenants to routers and manages their secrets.
type Service struct {
	storage interfaces.StorageManager
	vault   *vault.Vault
	routers *routing.RouterCache
	config  *common.Config
	logger  *common.Logger
	now     func() time.Time // injectable clock for testing

	defaultOnce   sync.Once
	defaultRouter *routing.Router
}

// NewService creates a tenant service.
func NewService(storage interfaces.StorageManager, v *vault.Vault, routers *routing.RouterCache, config *common.Config, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		vault:   v,
		routers: routers,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// EncryptConfig serializes and seals a tenant configuration.
func (s *Service) EncryptConfig(cfg models.TenantConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to serialize tenant config: %w", err)
	}
	return s.vault.Encrypt(string(raw))
}

// DecryptConfig opens and deserializes an encrypted tenant configuration.
func (s *Service) DecryptConfig(ciphertext string) (models.TenantConfig, error) {
	var cfg models.TenantConfig
	raw, err := s.vault.Decrypt(ciphertext)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse tenant config: %w", err)
	}
	return cfg, nil
}

// defaults builds the operator-level TenantConfig that tenant overrides
// are merged onto.
func (s *Service) defaults() models.TenantConfig {
	dc := s.config.Routing.DefaultConfig
	base := models.TenantConfig{
		AlpacaAPIKey:    dc["ALPACA_API_KEY"],
		AlpacaSecretKey: dc["ALPACA_SECRET_KEY"],
		PolygonAPIKey:   dc["POLYGON_API_KEY"],
		FMPAPIKey:       dc["FMP_API_KEY"],
		FinnhubAPIKey:   dc["FINNHUB_API_KEY"],
	}
	if s.config.Routing.EnableCaching {
		enabled := true
		base.EnableCaching = &enabled
		base.CacheTTLSeconds = int(s.config.Routing.GetCacheTTL() / time.Second)
	}
	return base
}

func (s *Service) buildRouter(cfg models.TenantConfig) *routing.Router {
	merged := s.defaults().Merge(cfg)
	opts := []routing.RouterOption{routing.WithLogger(s.logger)}
	if merged.EnableCaching != nil && *merged.EnableCaching {
		opts = append(opts, routing.WithCaching(time.Duration(merged.CacheTTLSeconds)*time.Second))
	}
	return routing.NewRouter(merged, opts...)
}

// DefaultRouter returns the shared router built from operator defaults
// alone. Used for legacy static API keys, which carry no tenant
// configuration. Built once per process so health state and the caching
// layer persist across requests.
func (s *Service) DefaultRouter() *routing.Router {
	s.defaultOnce.Do(func() {
		s.defaultRouter = s.buildRouter(models.TenantConfig{})
	})
	return s.defaultRouter
}

// CreateConnection encrypts the tenant config and persists a new connection.
func (s *Service) CreateConnection(ctx context.Context, name string, cfg models.TenantConfig) (*models.Connection, error) {
	encrypted, err := s.EncryptConfig(cfg)
	if err != nil {
		return nil, err
	}

	now := s.now()
	conn := &models.Connection{
		ID:              uuid.NewString(),
		Name:            name,
		ConfigEncrypted: encrypted,
		ConfigVersion:   1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.storage.OAuthStore().SaveConnection(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info().Str("connection_id", conn.ID).Msg("Connection created")
	return conn, nil
}

// RouterForConnection returns the router for a connection, building and
// caching it on first use. The cache key includes the config version, so
// re-encrypted configs get a fresh router.
func (s *Service) RouterForConnection(ctx context.Context, connectionID string) (*routing.Router, error) {
	conn, err := s.storage.OAuthStore().GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if router := s.routers.Get(conn.ID, conn.ConfigVersion); router != nil {
		return router, nil
	}

	cfg, err := s.DecryptConfig(conn.ConfigEncrypted)
	if err != nil {
		return nil, err
	}

	router := s.buildRouter(cfg)
	s.routers.Put(conn.ID, conn.ConfigVersion, router)
	return router, nil
}

// RouterForUserConfig returns the router for a self-service tenant.
// User configs are not versioned; revocation removes the cache entry.
func (s *Service) RouterForUserConfig(ctx context.Context, userConfigID string) (*routing.Router, error) {
	userCfg, err := s.storage.TenantStore().GetUserConfig(ctx, userConfigID)
	if err != nil {
		return nil, err
	}
	if userCfg.RevokedAt != nil {
		return nil, common.NewAuthError("tenant configuration revoked")
	}

	if router := s.routers.Get(userCfg.ID, 1); router != nil {
		return router, nil
	}

	cfg, err := s.DecryptConfig(userCfg.ConfigEncrypted)
	if err != nil {
		return nil, err
	}

	router := s.buildRouter(cfg)
	s.routers.Put(userCfg.ID, 1, router)
	return router, nil
}

// CreateUserConfigWithKey persists a new self-service tenant and issues its
// first API key. The raw key is returned exactly once and never stored.
func (s *Service) CreateUserConfigWithKey(ctx context.Context, name string, cfg models.TenantConfig, createdIP string) (*models.UserConfig, string, error) {
	encrypted, err := s.EncryptConfig(cfg)
	if err != nil {
		return nil, "", err
	}

	userCfg := &models.UserConfig{
		ID:              uuid.NewString(),
		Name:            name,
		ConfigEncrypted: encrypted,
		CreatedAt:       s.now(),
	}
	if err := s.storage.TenantStore().SaveUserConfig(ctx, userCfg); err != nil {
		return nil, "", err
	}

	rawKey, err := s.IssueApiKey(ctx, userCfg.ID, createdIP)
	if err != nil {
		return nil, "", err
	}

	return userCfg, rawKey, nil
}

// IssueApiKey mints a new key for an existing tenant and returns the raw
// key. Format: "mcp_sk_" followed by 64 hex characters.
func (s *Service) IssueApiKey(ctx context.Context, userConfigID, createdIP string) (string, error) {
	secret, err := vault.GenerateRandomString(apiKeySecretBytes)
	if err != nil {
		return "", err
	}
	rawKey := ApiKeyPrefix + secret

	key := &models.ApiKey{
		ID:           uuid.NewString(),
		UserConfigID: userConfigID,
		KeyHash:      vault.HashToken(rawKey),
		CreatedIP:    createdIP,
		CreatedAt:    s.now(),
	}
	if err := s.storage.TenantStore().SaveApiKey(ctx, key); err != nil {
		return "", err
	}

	s.logger.Info().Str("key_id", key.ID).Str("user_config_id", userConfigID).Msg("API key issued")
	return rawKey, nil
}

// ValidateApiKey resolves a raw key to its tenant. It fails when the key
// is unknown, revoked, or its owning config is revoked. Usage recording
// is fire-and-forget so lookups stay on the hot path.
func (s *Service) ValidateApiKey(ctx context.Context, rawKey string) (*models.ApiKey, *models.UserConfig, error) {
	key, err := s.storage.TenantStore().GetApiKeyByHash(ctx, vault.HashToken(rawKey))
	if err != nil {
		return nil, nil, common.NewAuthError("invalid API key")
	}
	if key.RevokedAt != nil {
		return nil, nil, common.NewAuthError("API key revoked")
	}

	userCfg, err := s.storage.TenantStore().GetUserConfig(ctx, key.UserConfigID)
	if err != nil {
		return nil, nil, common.NewAuthError("invalid API key")
	}
	if userCfg.RevokedAt != nil {
		return nil, nil, common.NewAuthError("tenant configuration revoked")
	}

	go s.recordKeyUsage(key.ID)

	return key, userCfg, nil
}

// recordKeyUsage updates last_used_at outside the request path. Failures
// are logged and dropped.
func (s *Service) recordKeyUsage(keyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.storage.TenantStore().UpdateApiKeyLastUsed(ctx, keyID, s.now()); err != nil {
		s.logger.Warn().Err(err).Str("key_id", keyID).Msg("Failed to record API key usage")
	}
}

// RevokeApiKeyByRawKey revokes the key a caller presents. Callers prove
// possession of the key; no separate ownership check is needed.
func (s *Service) RevokeApiKeyByRawKey(ctx context.Context, rawKey string) error {
	key, err := s.storage.TenantStore().GetApiKeyByHash(ctx, vault.HashToken(rawKey))
	if err != nil {
		return common.NewAuthError("invalid API key")
	}
	return s.storage.TenantStore().RevokeApiKey(ctx, key.ID)
}

// RevokeUserConfig revokes the tenant, all of its keys, and drops any
// cached router so revocation takes effect immediately.
func (s *Service) RevokeUserConfig(ctx context.Context, userConfigID string) error {
	if err := s.storage.TenantStore().RevokeUserConfig(ctx, userConfigID); err != nil {
		return err
	}
	if err := s.storage.TenantStore().RevokeApiKeysByUserConfig(ctx, userConfigID); err != nil {
		return err
	}
	s.routers.Delete(userConfigID)

	s.logger.Info().Str("user_config_id", userConfigID).Msg("Tenant configuration revoked")
	return nil
}
