// Package app wires configuration, storage, crypto, and services into the
// shared core used by cmd/signalmesh-server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/ratelimit"
	"github.com/bobmcallan/signalmesh/internal/routing"
	"github.com/bobmcallan/signalmesh/internal/services/screener"
	"github.com/bobmcallan/signalmesh/internal/services/tenant"
	"github.com/bobmcallan/signalmesh/internal/storage/surrealdb"
	"github.com/bobmcallan/signalmesh/internal/vault"
)

// purgeInterval between background sweeps of expired codes and sessions.
const purgeInterval = 5 * time.Minute

// App holds all initialized services and shared state.
type App struct {
	Config   *common.Config
	Logger   *common.Logger
	Storage  interfaces.StorageManager
	Vault    *vault.Vault
	Limiter  *ratelimit.Limiter
	Routers  *routing.RouterCache
	Tenants  *tenant.Service
	Screener *screener.Service

	StartupTime time.Time

	purgeCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, the vault, and all services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	if configPath == "" {
		configPath = os.Getenv("SIGNALMESH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "signalmesh.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/signalmesh.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	// The vault refuses to start without a master key: encrypting tenant
	// credentials under a zero key is worse than not starting.
	vaultOpts := []vault.Option{vault.WithLogger(logger)}
	if config.Vault.LegacyFallback {
		vaultOpts = append(vaultOpts, vault.WithLegacyFallback(config.Vault.MasterKey))
	}
	v, err := vault.New(config.Vault.MasterKey, vaultOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	}

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	routers := routing.NewRouterCache()

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Vault:       v,
		Limiter:     ratelimit.NewLimiter(),
		Routers:     routers,
		Tenants:     tenant.NewService(storageManager, v, routers, config, logger),
		Screener:    screener.NewService(logger),
		StartupTime: time.Now(),
	}

	keyInfo := vault.DescribeMasterKey(config.Vault.MasterKey)
	logger.Info().
		Str("version", common.GetVersion()).
		Str("environment", config.Environment).
		Str("issuer", config.Issuer).
		Str("master_key_format", keyInfo.Format).
		Msg("Application initialized")

	return a, nil
}

// StartPurgeLoop launches the background sweep of expired authorization
// codes, expired sessions, and stale rate limit windows.
func (a *App) StartPurgeLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	a.purgeCancel = cancel

	go func() {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.purgeExpired(ctx)
			}
		}
	}()
}

func (a *App) purgeExpired(ctx context.Context) {
	store := a.Storage.OAuthStore()
	if _, err := store.PurgeExpiredAuthCodes(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to purge expired auth codes")
	}
	if _, err := store.PurgeExpiredSessions(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to purge expired sessions")
	}
	a.Limiter.Prune()
}

// Close stops background work and releases storage.
func (a *App) Close() error {
	if a.purgeCancel != nil {
		a.purgeCancel()
	}
	return a.Storage.Close()
}
