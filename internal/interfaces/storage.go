package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/signalmesh/internal/models"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrCodeNotRedeemable is returned by RedeemAuthCode when the code is
// unknown, expired, or was already redeemed by a concurrent request.
var ErrCodeNotRedeemable = errors.New("authorization code not redeemable")

// StorageManager coordinates all storage backends
type StorageManager interface {
	OAuthStore() OAuthStore
	TenantStore() TenantStore

	// Lifecycle
	Close() error
}

// OAuthStore manages OAuth clients, connections, authorization codes, and sessions.
type OAuthStore interface {
	// Clients
	SaveClient(ctx context.Context, client *models.OAuthClient) error
	GetClient(ctx context.Context, clientID string) (*models.OAuthClient, error)

	// Connections
	SaveConnection(ctx context.Context, conn *models.Connection) error
	GetConnection(ctx context.Context, id string) (*models.Connection, error)

	// Authorization codes, keyed by code hash.
	SaveAuthCode(ctx context.Context, code *models.AuthCode) error

	// RedeemAuthCode atomically marks the code used and returns its prior
	// state. It succeeds for exactly one caller, and only when the stored
	// redirect URI and code challenge match the submitted values and the
	// stored client ID (when present) matches clientID. Any mismatch
	// returns ErrCodeNotRedeemable without consuming the code, so a failed
	// exchange attempt does not burn it for the legitimate client.
	// "Read, verify, mark used" must not be split into separate operations.
	RedeemAuthCode(ctx context.Context, codeHash, redirectURI, codeChallenge, clientID string, now time.Time) (*models.AuthCode, error)

	PurgeExpiredAuthCodes(ctx context.Context) (int, error)

	// Sessions
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	RevokeSession(ctx context.Context, id string) error
	UpdateSessionLastUsed(ctx context.Context, id string, lastUsedAt time.Time) error
	PurgeExpiredSessions(ctx context.Context) (int, error)
}

// TenantStore manages self-service user configs and their API keys.
type TenantStore interface {
	SaveUserConfig(ctx context.Context, cfg *models.UserConfig) error
	GetUserConfig(ctx context.Context, id string) (*models.UserConfig, error)
	RevokeUserConfig(ctx context.Context, id string) error

	SaveApiKey(ctx context.Context, key *models.ApiKey) error
	GetApiKeyByHash(ctx context.Context, keyHash string) (*models.ApiKey, error)
	RevokeApiKey(ctx context.Context, id string) error
	RevokeApiKeysByUserConfig(ctx context.Context, userConfigID string) error
	UpdateApiKeyLastUsed(ctx context.Context, id string, lastUsedAt time.Time) error
}
