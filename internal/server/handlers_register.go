package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/models"
)

const (
	maxRedirectURIs  = 20
	maxClientNameLen = 200
)

// handleRegister handles POST /register: dynamic client registration
// (RFC 7591). Clients are public: no secret is issued and redirect URIs
// are immutable after creation.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		ClientName    string   `json:"client_name"`
		RedirectURIs  []string `json:"redirect_uris"`
		GrantTypes    []string `json:"grant_types"`
		ResponseTypes []string `json:"response_types"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := validateClientMetadata(req.RedirectURIs, req.GrantTypes, req.ResponseTypes); err != nil {
		writeDomainError(w, err)
		return
	}
	if len(req.ClientName) > maxClientNameLen {
		writeDomainError(w, common.NewValidationError("invalid_client_metadata", "client_name is too long"))
		return
	}

	client := &models.OAuthClient{
		ClientID:                uuid.NewString(),
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: "none",
		CreatedAt:               time.Now(),
	}

	if err := s.app.Storage.OAuthStore().SaveClient(r.Context(), client); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save OAuth client")
		WriteError(w, http.StatusInternalServerError, "failed to register client")
		return
	}

	s.logger.Info().Str("client_id", client.ClientID).Msg("OAuth client registered")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"client_id":                  client.ClientID,
		"client_id_issued_at":        client.CreatedAt.Unix(),
		"client_name":                client.ClientName,
		"redirect_uris":              client.RedirectURIs,
		"token_endpoint_auth_method": "none",
		"grant_types":                []string{"authorization_code"},
		"response_types":             []string{"code"},
	})
}

// validateClientMetadata checks RFC 7591 registration metadata. Returns
// nil when valid.
func validateClientMetadata(redirectURIs, grantTypes, responseTypes []string) error {
	if len(redirectURIs) == 0 {
		return common.NewValidationError("invalid_client_metadata", "redirect_uris is required and must contain at least one URI")
	}
	if len(redirectURIs) > maxRedirectURIs {
		return common.NewValidationError("invalid_client_metadata", "redirect_uris must not contain more than %d URIs", maxRedirectURIs)
	}
	for _, uri := range redirectURIs {
		u, err := url.Parse(uri)
		if err != nil || u.Host == "" {
			return common.NewValidationError("invalid_client_metadata", "invalid redirect_uri: %s", uri)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return common.NewValidationError("invalid_client_metadata", "redirect_uri must use http or https scheme: %s", uri)
		}
	}
	if len(grantTypes) > 0 && !contains(grantTypes, "authorization_code") {
		return common.NewValidationError("invalid_client_metadata", "grant_types must include authorization_code")
	}
	if len(responseTypes) > 0 && !contains(responseTypes, "code") {
		return common.NewValidationError("invalid_client_metadata", "response_types must include code")
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
