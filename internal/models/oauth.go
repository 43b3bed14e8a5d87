// Package models defines the persistent entities for signalmesh
package models

import "time"

// OAuthClient represents a dynamically registered OAuth client (RFC 7591).
// Clients are public: no secret is issued and the token endpoint auth
// method is always "none". Redirect URIs are immutable after creation.
type OAuthClient struct {
	ClientID                string    `json:"client_id"`
	ClientName              string    `json:"client_name,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"` // always "none"
	CreatedAt               time.Time `json:"created_at"`
}

// Connection is a tenant: a vault-encrypted provider configuration created
// by the authorization flow. It owns sessions and authorization codes.
// The core never hard-deletes connections.
type Connection struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ConfigEncrypted string    `json:"-"`
	ConfigVersion   int       `json:"config_version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AuthCode is an authorization code pending redemption. Only the SHA-256
// hash of the code is stored. UsedAt is set exactly once by the atomic
// redemption update; a set UsedAt permanently blocks further redemption.
type AuthCode struct {
	CodeHash            string     `json:"-"`
	ConnectionID        string     `json:"connection_id"`
	ClientID            string     `json:"client_id,omitempty"`
	RedirectURI         string     `json:"redirect_uri"`
	State               string     `json:"state,omitempty"`
	CodeChallenge       string     `json:"code_challenge"`
	CodeChallengeMethod string     `json:"code_challenge_method"` // always "S256"
	ExpiresAt           time.Time  `json:"expires_at"`
	UsedAt              *time.Time `json:"used_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Session is an opaque bearer credential bound to a connection. The access
// token presented by clients is "<id>:<secret>"; only the SHA-256 hash of
// the secret is stored.
type Session struct {
	ID           string     `json:"id"`
	ConnectionID string     `json:"connection_id"`
	TokenHash    string     `json:"-"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Usable reports whether the session may authenticate requests right now.
// The presented secret is verified separately against TokenHash.
func (s *Session) Usable(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
