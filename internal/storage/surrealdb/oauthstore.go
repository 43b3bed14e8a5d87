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

// oauthClientRow is the DB-level representation of an OAuth client.
type oauthClientRow struct {
	ClientID                string    `json:"client_id"`
	ClientName              string    `json:"client_name"`
	RedirectURIs            []string  `json:"redirect_uris"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	CreatedAt               time.Time `json:"created_at"`
}

// connectionRow is the DB-level representation of a connection.
type connectionRow struct {
	ConnectionID    string    `json:"connection_id"`
	Name            string    `json:"name"`
	ConfigEncrypted string    `json:"config_encrypted"`
	ConfigVersion   int       `json:"config_version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// authCodeRow is the DB-level representation of an authorization code.
// Keyed by the SHA-256 hash of the code; the raw code is never stored.
type authCodeRow struct {
	CodeHash            string     `json:"code_hash"`
	ConnectionID        string     `json:"connection_id"`
	ClientID            string     `json:"client_id"`
	RedirectURI         string     `json:"redirect_uri"`
	State               string     `json:"state"`
	CodeChallenge       string     `json:"code_challenge"`
	CodeChallengeMethod string     `json:"code_challenge_method"`
	ExpiresAt           time.Time  `json:"expires_at"`
	UsedAt              *time.Time `json:"used_at"`
	CreatedAt           time.Time  `json:"created_at"`
}

// sessionRow is the DB-level representation of a bearer session.
type sessionRow struct {
	SessionID    string     `json:"session_id"`
	ConnectionID string     `json:"connection_id"`
	TokenHash    string     `json:"token_hash"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RevokedAt    *time.Time `json:"revoked_at"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// OAuthStore implements interfaces.OAuthStore using SurrealDB.
type OAuthStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewOAuthStore creates a new OAuthStore.
func NewOAuthStore(db *surrealdb.DB, logger *common.Logger) *OAuthStore {
	return &OAuthStore{db: db, logger: logger}
}

// --- Clients ---

func (s *OAuthStore) SaveClient(ctx context.Context, client *models.OAuthClient) error {
	sql := `UPSERT $rid SET
		client_id = $client_id, client_name = $client_name,
		redirect_uris = $redirect_uris,
		token_endpoint_auth_method = $token_endpoint_auth_method,
		created_at = $created_at`
	vars := map[string]any{
		"rid":                        surrealmodels.NewRecordID("oauth_client", client.ClientID),
		"client_id":                  client.ClientID,
		"client_name":                client.ClientName,
		"redirect_uris":              client.RedirectURIs,
		"token_endpoint_auth_method": client.TokenEndpointAuthMethod,
		"created_at":                 client.CreatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save oauth client: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetClient(ctx context.Context, clientID string) (*models.OAuthClient, error) {
	sql := "SELECT client_id, client_name, redirect_uris, token_endpoint_auth_method, created_at FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("oauth_client", clientID),
	}
	results, err := surrealdb.Query[[]oauthClientRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get oauth client: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := (*results)[0].Result[0]
	return &models.OAuthClient{
		ClientID:                row.ClientID,
		ClientName:              row.ClientName,
		RedirectURIs:            row.RedirectURIs,
		TokenEndpointAuthMethod: row.TokenEndpointAuthMethod,
		CreatedAt:               row.CreatedAt,
	}, nil
}

// --- Connections ---

func (s *OAuthStore) SaveConnection(ctx context.Context, conn *models.Connection) error {
	sql := `UPSERT $rid SET
		connection_id = $connection_id, name = $name,
		config_encrypted = $config_encrypted, config_version = $config_version,
		created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":              surrealmodels.NewRecordID("connection", conn.ID),
		"connection_id":    conn.ID,
		"name":             conn.Name,
		"config_encrypted": conn.ConfigEncrypted,
		"config_version":   conn.ConfigVersion,
		"created_at":       conn.CreatedAt,
		"updated_at":       conn.UpdatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	sql := "SELECT connection_id, name, config_encrypted, config_version, created_at, updated_at FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("connection", id),
	}
	results, err := surrealdb.Query[[]connectionRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := (*results)[0].Result[0]
	return &models.Connection{
		ID:              row.ConnectionID,
		Name:            row.Name,
		ConfigEncrypted: row.ConfigEncrypted,
		ConfigVersion:   row.ConfigVersion,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

// --- Authorization codes ---

func (s *OAuthStore) SaveAuthCode(ctx context.Context, code *models.AuthCode) error {
	sql := `UPSERT $rid SET
		code_hash = $code_hash, connection_id = $connection_id,
		client_id = $client_id, redirect_uri = $redirect_uri, state = $state,
		code_challenge = $code_challenge,
		code_challenge_method = $code_challenge_method,
		expires_at = $expires_at, used_at = $used_at, created_at = $created_at`
	vars := map[string]any{
		"rid":                   surrealmodels.NewRecordID("auth_code", code.CodeHash),
		"code_hash":             code.CodeHash,
		"connection_id":         code.ConnectionID,
		"client_id":             code.ClientID,
		"redirect_uri":          code.RedirectURI,
		"state":                 code.State,
		"code_challenge":        code.CodeChallenge,
		"code_challenge_method": code.CodeChallengeMethod,
		"expires_at":            code.ExpiresAt,
		"used_at":               code.UsedAt,
		"created_at":            code.CreatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save auth code: %w", err)
	}
	return nil
}

// RedeemAuthCode marks the code used in a single conditional update so
// exactly one concurrent caller wins. The redirect, challenge, and client
// predicates sit inside the same WHERE clause: a mismatched attempt
// matches no row and leaves the code redeemable. RETURN BEFORE yields the
// pre-update row, so a result means this caller performed the transition.
func (s *OAuthStore) RedeemAuthCode(ctx context.Context, codeHash, redirectURI, codeChallenge, clientID string, now time.Time) (*models.AuthCode, error) {
	sql := `UPDATE $rid SET used_at = $now
		WHERE used_at = NONE AND expires_at > $now
			AND redirect_uri = $redirect_uri AND code_challenge = $challenge
			AND (client_id = "" OR client_id = $client_id)
		RETURN BEFORE`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("auth_code", codeHash),
		"now":          now,
		"redirect_uri": redirectURI,
		"challenge":    codeChallenge,
		"client_id":    clientID,
	}
	results, err := surrealdb.Query[[]authCodeRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrCodeNotRedeemable
		}
		return nil, fmt.Errorf("failed to redeem auth code: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrCodeNotRedeemable
	}
	row := (*results)[0].Result[0]
	return &models.AuthCode{
		CodeHash:            row.CodeHash,
		ConnectionID:        row.ConnectionID,
		ClientID:            row.ClientID,
		RedirectURI:         row.RedirectURI,
		State:               row.State,
		CodeChallenge:       row.CodeChallenge,
		CodeChallengeMethod: row.CodeChallengeMethod,
		ExpiresAt:           row.ExpiresAt,
		UsedAt:              row.UsedAt,
		CreatedAt:           row.CreatedAt,
	}, nil
}

func (s *OAuthStore) PurgeExpiredAuthCodes(ctx context.Context) (int, error) {
	sql := "DELETE FROM auth_code WHERE expires_at < $now"
	vars := map[string]any{"now": time.Now()}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge expired auth codes: %w", err)
	}
	// SurrealDB DELETE doesn't return count easily; return 0 as best effort
	return 0, nil
}

// --- Sessions ---

func (s *OAuthStore) SaveSession(ctx context.Context, session *models.Session) error {
	sql := `UPSERT $rid SET
		session_id = $session_id, connection_id = $connection_id,
		token_hash = $token_hash, expires_at = $expires_at,
		revoked_at = $revoked_at, last_used_at = $last_used_at,
		created_at = $created_at`
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("session", session.ID),
		"session_id":    session.ID,
		"connection_id": session.ConnectionID,
		"token_hash":    session.TokenHash,
		"expires_at":    session.ExpiresAt,
		"revoked_at":    session.RevokedAt,
		"last_used_at":  session.LastUsedAt,
		"created_at":    session.CreatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sql := "SELECT session_id, connection_id, token_hash, expires_at, revoked_at, last_used_at, created_at FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("session", id),
	}
	results, err := surrealdb.Query[[]sessionRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, interfaces.ErrNotFound
	}
	row := (*results)[0].Result[0]
	return &models.Session{
		ID:           row.SessionID,
		ConnectionID: row.ConnectionID,
		TokenHash:    row.TokenHash,
		ExpiresAt:    row.ExpiresAt,
		RevokedAt:    row.RevokedAt,
		LastUsedAt:   row.LastUsedAt,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (s *OAuthStore) RevokeSession(ctx context.Context, id string) error {
	sql := "UPDATE $rid SET revoked_at = $now WHERE revoked_at = NONE"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("session", id),
		"now": time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *OAuthStore) UpdateSessionLastUsed(ctx context.Context, id string, lastUsedAt time.Time) error {
	sql := "UPDATE $rid SET last_used_at = $last_used_at"
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("session", id),
		"last_used_at": lastUsedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update session last_used_at: %w", err)
	}
	return nil
}

func (s *OAuthStore) PurgeExpiredSessions(ctx context.Context) (int, error) {
	sql := "DELETE FROM session WHERE expires_at < $now"
	vars := map[string]any{"now": time.Now()}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return 0, nil
}

// Compile-time check
var _ interfaces.OAuthStore = (*OAuthStore)(nil)
