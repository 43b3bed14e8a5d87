// Package common provides shared utilities for signalmesh
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for signalmesh
type Config struct {
	Environment string        `toml:"environment"`
	Issuer      string        `toml:"issuer"` // External base URL, e.g. "https://mcp.example.com"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Auth        AuthConfig    `toml:"auth"`
	Vault       VaultConfig   `toml:"vault"`
	Routing     RoutingConfig `toml:"routing"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// AuthConfig holds OAuth, session, and API key configuration.
type AuthConfig struct {
	CodeTTL    string `toml:"code_ttl"`    // duration string, default "90s"
	SessionTTL string `toml:"session_ttl"` // duration string, default "1h"

	// Redirect URI allowlist enforced on top of client registration.
	// Empty allowlist rejects all authorization requests.
	RedirectAllowlist     []string `toml:"redirect_allowlist"`
	RedirectAllowlistMode string   `toml:"redirect_allowlist_mode"` // "exact" or "prefix"

	// API key issuance. Mode "user_bound" enables the /api-keys endpoints.
	APIKeyMode          string `toml:"api_key_mode"`
	APIKeyRateLimit     int    `toml:"api_key_ratelimit"`
	APIKeyWindowSeconds int    `toml:"api_key_window_seconds"`

	// Legacy static API keys accepted on /mcp, compared in constant time.
	LegacyAPIKeys []string `toml:"legacy_api_keys"`
}

// GetCodeTTL parses and returns the authorization code lifetime.
func (c *AuthConfig) GetCodeTTL() time.Duration {
	d, err := time.ParseDuration(c.CodeTTL)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// GetSessionTTL parses and returns the bearer session lifetime.
func (c *AuthConfig) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// VaultConfig holds master key and compatibility settings.
type VaultConfig struct {
	// MasterKey is the operator secret: either 64 hex characters (decoded
	// directly to 32 bytes) or an arbitrary passphrase (derived via SHA-256).
	// Usually supplied via the MASTER_KEY environment variable.
	MasterKey string `toml:"master_key"`

	// LegacyFallback enables the deprecated PBKDF2 key schedule as a
	// second decryption attempt. Off by default; every use is logged.
	LegacyFallback bool `toml:"legacy_fallback"`
}

// RoutingConfig holds defaults for tenant provider routing.
type RoutingConfig struct {
	EnableCaching bool              `toml:"enable_caching"`
	CacheTTL      string            `toml:"cache_ttl"`      // duration string, default "60s"
	DefaultConfig map[string]string `toml:"default_config"` // operator-level provider credentials merged under tenant overrides
}

// GetCacheTTL parses and returns the provider cache TTL.
func (c *RoutingConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Issuer:      "http://localhost:8080",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "signalmesh",
			Database:  "signalmesh",
		},
		Auth: AuthConfig{
			CodeTTL:               "90s",
			SessionTTL:            "1h",
			RedirectAllowlistMode: "exact",
			APIKeyMode:            "disabled",
			APIKeyRateLimit:       3,
			APIKeyWindowSeconds:   3600,
		},
		Routing: RoutingConfig{
			EnableCaching: true,
			CacheTTL:      "60s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	validateAllowlistMode(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SIGNALMESH_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("SIGNALMESH_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("SIGNALMESH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("SIGNALMESH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if issuer := os.Getenv("SIGNALMESH_ISSUER"); issuer != "" {
		config.Issuer = issuer
	}

	// Storage overrides
	if v := os.Getenv("SIGNALMESH_DB_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("SIGNALMESH_DB_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("SIGNALMESH_DB_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	// Vault overrides. MASTER_KEY is intentionally unprefixed: it is the
	// one secret operators are expected to inject everywhere.
	if v := os.Getenv("MASTER_KEY"); v != "" {
		config.Vault.MasterKey = v
	}
	if v := os.Getenv("SIGNALMESH_VAULT_LEGACY_FALLBACK"); v != "" {
		config.Vault.LegacyFallback = v == "true" || v == "1"
	}

	// Auth overrides
	if v := os.Getenv("SIGNALMESH_CODE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			config.Auth.CodeTTL = fmt.Sprintf("%ds", secs)
		}
	}
	if v := os.Getenv("SIGNALMESH_TOKEN_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			config.Auth.SessionTTL = fmt.Sprintf("%ds", secs)
		}
	}
	if v := os.Getenv("SIGNALMESH_REDIRECT_ALLOWLIST"); v != "" {
		config.Auth.RedirectAllowlist = splitAndTrim(v)
	}
	if v := os.Getenv("SIGNALMESH_REDIRECT_ALLOWLIST_MODE"); v != "" {
		config.Auth.RedirectAllowlistMode = v
	}
	if v := os.Getenv("SIGNALMESH_API_KEY_MODE"); v != "" {
		config.Auth.APIKeyMode = v
	}
	if v := os.Getenv("SIGNALMESH_API_KEY_RATELIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Auth.APIKeyRateLimit = n
		}
	}
	if v := os.Getenv("SIGNALMESH_API_KEY_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Auth.APIKeyWindowSeconds = n
		}
	}
	if v := os.Getenv("SIGNALMESH_LEGACY_API_KEYS"); v != "" {
		config.Auth.LegacyAPIKeys = splitAndTrim(v)
	}

	// Routing overrides
	if v := os.Getenv("SIGNALMESH_ENABLE_CACHING"); v != "" {
		config.Routing.EnableCaching = v == "true" || v == "1"
	}
	if v := os.Getenv("SIGNALMESH_CACHE_TTL"); v != "" {
		config.Routing.CacheTTL = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// UserBoundKeysEnabled reports whether self-service API key issuance is on.
func (c *Config) UserBoundKeysEnabled() bool {
	return c.Auth.APIKeyMode == "user_bound"
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// validateAllowlistMode ensures the mode is "exact" or "prefix", defaulting to "exact".
func validateAllowlistMode(config *Config) {
	mode := strings.ToLower(strings.TrimSpace(config.Auth.RedirectAllowlistMode))
	if mode != "exact" && mode != "prefix" {
		mode = "exact"
	}
	config.Auth.RedirectAllowlistMode = mode
}
