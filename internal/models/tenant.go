package models

import "time"

// UserConfig is a self-service tenant configuration created through the
// API key flow rather than OAuth. It is bound 1:N to ApiKeys.
type UserConfig struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	ConfigEncrypted string     `json:"-"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ApiKey is a user-bound API key. Only the SHA-256 hash of the raw key
// (format "mcp_sk_<64 hex>") is stored. A key is usable iff neither the
// key nor its owning UserConfig is revoked.
type ApiKey struct {
	ID           string     `json:"id"`
	UserConfigID string     `json:"user_config_id"`
	KeyHash      string     `json:"-"`
	CreatedIP    string     `json:"created_ip,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TenantConfig is the decrypted per-tenant provider configuration the
// router is built from. Secret fields never leave process memory.
type TenantConfig struct {
	AlpacaAPIKey    string `json:"ALPACA_API_KEY,omitempty"`
	AlpacaSecretKey string `json:"ALPACA_SECRET_KEY,omitempty"`
	PolygonAPIKey   string `json:"POLYGON_API_KEY,omitempty"`
	FMPAPIKey       string `json:"FMP_API_KEY,omitempty"`
	FinnhubAPIKey   string `json:"FINNHUB_API_KEY,omitempty"`

	EnableCaching   *bool `json:"ENABLE_CACHING,omitempty"`
	CacheTTLSeconds int   `json:"CACHE_TTL,omitempty"`
}

// Merge overlays non-zero fields of other onto a copy of c and returns it.
// Used to combine operator defaults with decrypted tenant overrides.
func (c TenantConfig) Merge(other TenantConfig) TenantConfig {
	merged := c
	if other.AlpacaAPIKey != "" {
		merged.AlpacaAPIKey = other.AlpacaAPIKey
	}
	if other.AlpacaSecretKey != "" {
		merged.AlpacaSecretKey = other.AlpacaSecretKey
	}
	if other.PolygonAPIKey != "" {
		merged.PolygonAPIKey = other.PolygonAPIKey
	}
	if other.FMPAPIKey != "" {
		merged.FMPAPIKey = other.FMPAPIKey
	}
	if other.FinnhubAPIKey != "" {
		merged.FinnhubAPIKey = other.FinnhubAPIKey
	}
	if other.EnableCaching != nil {
		merged.EnableCaching = other.EnableCaching
	}
	if other.CacheTTLSeconds > 0 {
		merged.CacheTTLSeconds = other.CacheTTLSeconds
	}
	return merged
}
