package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
)

// userConfigRow is the DB-level representation of a self-service tenant config.
type userConfigRow struct {
	UserConfigID    string     `json:"user_config_id"`
	Name            string     `json:"name"`
	ConfigEncrypted string     `json:"config_encrypted"`
	RevokedAt       *time.Time `json:"revoked_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// apiKeyRow is the DB-level representation of an API key. Keyed by the
// SHA-256 hash of the raw key; the raw key is never stored.
type apiKeyRow struct {
	KeyID        string     `json:"key_id"`
	UserConfigID string     `json:"user_config_id"`
	KeyHash      string     `json:"key_hash"`
	CreatedIP    string     `json:"created_ip"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	RevokedAt    *time.Time `json:"revoked_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TenantStore implements interfaces.TenantStore using SurrealDB.
type TenantStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewTenantStore creates a new TenantStore.
func NewTenantStore(db *surrealdb.DB, logger *common.Logger) *TenantStore {
	return &TenantStore{db: db, logger: logger}
}

// --- User configs ---

func (s *TenantStore) SaveUserConfig(ctx context.Context, cfg *models.UserConfig) error {
	sql := `UPSERT $rid SET
		user_config_id = $user_config_id, name = $name,
		config_encrypted = $config_encrypted, revoked_at = $revoked_at,
		created_at = $created_at`
	vars := map[string]any{
		"rid":              surrealmodels.NewRecordID("user_config", cfg.ID),
		"user_config_id":   cfg.ID,
		"name":             cfg.Name,
		"config_encrypted": cfg.ConfigEncrypted,
		"revoked_at":       cfg.RevokedAt,
		"created_at":       cfg.CreatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}
	return nil
}

func (s *TenantStore) GetUserConfig(ctx context.Context, id string) (*models.UserConfig, error) {
	sql := "SELECT user_config_id, name, config_encrypted, revoked_at, created_at FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("user_config", id),
	}
	results, err := surrealdb.Query[[]userConfigRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user config: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := (*results)[0].Result[0]
	return &models.UserConfig{
		ID:              row.UserConfigID,
		Name:            row.Name,
		ConfigEncrypted: row.ConfigEncrypted,
		RevokedAt:       row.RevokedAt,
		CreatedAt:       row.CreatedAt,
	}, nil
}

func (s *TenantStore) RevokeUserConfig(ctx context.Context, id string) error {
	sql := "UPDATE $rid SET revoked_at = $now WHERE revoked_at = NONE"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("user_config", id),
		"now": time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke user config: %w", err)
	}
	return nil
}

// --- API keys ---

func (s *TenantStore) SaveApiKey(ctx context.Context, key *models.ApiKey) error {
	sql := `UPSERT $rid SET
		key_id = $key_id, user_config_id = $user_config_id,
		key_hash = $key_hash, created_ip = $created_ip,
		last_used_at = $last_used_at, revoked_at = $revoked_at,
		created_at = $created_at`
	vars := map[string]any{
		"rid":            surrealmodels.NewRecordID("api_key", key.ID),
		"key_id":         key.ID,
		"user_config_id": key.UserConfigID,
		"key_hash":       key.KeyHash,
		"created_ip":     key.CreatedIP,
		"last_used_at":   key.LastUsedAt,
		"revoked_at":     key.RevokedAt,
		"created_at":     key.CreatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

func (s *TenantStore) GetApiKeyByHash(ctx context.Context, keyHash string) (*models.ApiKey, error) {
	sql := "SELECT key_id, user_config_id, key_hash, created_ip, last_used_at, revoked_at, created_at FROM api_key WHERE key_hash = $key_hash LIMIT 1"
	vars := map[string]any{"key_hash": keyHash}
	results, err := surrealdb.Query[[]apiKeyRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := (*results)[0].Result[0]
	return &models.ApiKey{
		ID:           row.KeyID,
		UserConfigID: row.UserConfigID,
		KeyHash:      row.KeyHash,
		CreatedIP:    row.CreatedIP,
		LastUsedAt:   row.LastUsedAt,
		RevokedAt:    row.RevokedAt,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (s *TenantStore) RevokeApiKey(ctx context.Context, id string) error {
	sql := "UPDATE $rid SET revoked_at = $now WHERE revoked_at = NONE"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("api_key", id),
		"now": time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	return nil
}

func (s *TenantStore) RevokeApiKeysByUserConfig(ctx context.Context, userConfigID string) error {
	sql := "UPDATE api_key SET revoked_at = $now WHERE user_config_id = $user_config_id AND revoked_at = NONE"
	vars := map[string]any{
		"user_config_id": userConfigID,
		"now":            time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke api keys by user config: %w", err)
	}
	return nil
}

func (s *TenantStore) UpdateApiKeyLastUsed(ctx context.Context, id string, lastUsedAt time.Time) error {
	sql := "UPDATE $rid SET last_used_at = $last_used_at"
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("api_key", id),
		"last_used_at": lastUsedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update api key last_used_at: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.TenantStore = (*TenantStore)(nil)
