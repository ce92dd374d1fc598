package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-mcp-broker/broker"
	"github.com/jrsteele09/go-mcp-broker/internal/utils"
	"github.com/jrsteele09/go-mcp-broker/oauth2"
)

// AuthorizeHandler starts the flow: it validates the client's authorization
// request, creates the transaction and renders the consent view.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseAuthorizeRequest(r.URL.Query())
		if err != nil {
			log.Warn().Err(err).Msg("malformed authorize request")
			s.renderErrorPage(w, http.StatusBadRequest)
			return
		}

		result, err := s.broker.Authorize(r.Context(), req)
		if err != nil {
			s.renderAuthFailure(w, r, err)
			return
		}
		s.renderConsentPage(w, result.Consent)
	}
}

// ConsentGetHandler re-renders the consent view for a pending transaction.
func (s *Server) ConsentGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transactionID, err := singleParam(r.URL.Query(), "transaction_id")
		if err != nil {
			log.Warn().Err(err).Msg("malformed consent request")
			s.renderErrorPage(w, http.StatusBadRequest)
			return
		}

		presentation, err := s.broker.RenderConsent(r.Context(), transactionID)
		if err != nil {
			s.renderAuthFailure(w, r, err)
			return
		}
		s.renderConsentPage(w, presentation)
	}
}

// ConsentPostHandler confirms consent and redirects the user agent to the
// upstream provider's authorize endpoint.
func (s *Server) ConsentPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.renderErrorPage(w, http.StatusBadRequest)
			return
		}

		transactionID, err := singleParam(r.PostForm, "transaction_id")
		if err != nil {
			s.renderErrorPage(w, http.StatusBadRequest)
			return
		}
		consentToken, err := singleParam(r.PostForm, "consent_token")
		if err != nil {
			s.renderErrorPage(w, http.StatusBadRequest)
			return
		}

		upstreamURL, err := s.broker.ConfirmConsent(r.Context(), transactionID, consentToken)
		if err != nil {
			s.renderAuthFailure(w, r, err)
			return
		}

		http.Redirect(w, r, upstreamURL, http.StatusSeeOther)
	}
}

// CallbackHandler completes the flow when the upstream provider sends the
// user agent back. On success the broker's token response rides back to the
// original client redirect URI together with the client's own state.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		if r.Method == http.MethodPost {
			// form_post response mode
			if err := r.ParseForm(); err != nil {
				s.renderErrorPage(w, http.StatusBadRequest)
				return
			}
			params = r.PostForm
		}

		code, err := singleParam(params, "code")
		if err != nil {
			log.Warn().Err(err).Msg("malformed callback")
			s.renderErrorPage(w, http.StatusBadRequest)
			return
		}
		state, err := singleParam(params, "state")
		if err != nil {
			log.Warn().Err(err).Msg("malformed callback")
			s.renderErrorPage(w, http.StatusBadRequest)
			return
		}

		result, err := s.broker.HandleCallback(r.Context(), code, state)
		if err != nil {
			s.renderAuthFailure(w, r, err)
			return
		}

		http.Redirect(w, r, clientRedirectURL(result), http.StatusSeeOther)
	}
}

// TokenHandler rotates the broker's refresh credential.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		grantType := r.FormValue("grant_type")
		if oauth2.GrantType(grantType) != oauth2.RefreshTokenGrant {
			writeJSONError(w, "unsupported_grant_type", "only refresh_token is supported", http.StatusBadRequest)
			return
		}

		clientID := r.FormValue("client_id")
		refreshToken := r.FormValue("refresh_token")
		if clientID == "" || refreshToken == "" {
			writeJSONError(w, "invalid_request", "client_id and refresh_token are required", http.StatusBadRequest)
			return
		}

		// Confidential clients must also present their secret.
		client, err := s.registry.Get(clientID)
		if err != nil {
			writeJSONError(w, "invalid_client", "authentication failed", http.StatusUnauthorized)
			return
		}
		if !client.IsPublic() {
			if err := client.CheckSecret(r.FormValue("client_secret")); err != nil {
				writeJSONError(w, "invalid_client", "authentication failed", http.StatusUnauthorized)
				return
			}
		}

		tokenResponse, err := s.broker.Refresh(r.Context(), refreshToken, clientID)
		if err != nil {
			log.Warn().Err(err).Str("clientID", clientID).Msg("refresh grant rejected")
			writeJSONError(w, "invalid_grant", "authentication failed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// LogoutHandler invalidates the caller's broker credentials.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, err := bearerToken(r)
		if err != nil {
			writeJSONError(w, "invalid_token", "authentication failed", http.StatusUnauthorized)
			return
		}

		if err := s.broker.Logout(r.Context(), accessToken); err != nil {
			log.Warn().Err(err).Msg("logout rejected")
			writeJSONError(w, "invalid_token", "authentication failed", http.StatusUnauthorized)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// UserInfoHandler returns the verified identity of the caller. Runs behind
// RequireUser.
func (s *Server) UserInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		props, err := CurrentUser(r.Context())
		if err != nil {
			writeJSONError(w, "unauthorized", "authentication failed", http.StatusUnauthorized)
			return
		}

		resp := map[string]any{
			"sub": props.Subject(),
		}
		if email := props.Claims.StringClaim("email"); email != "" {
			resp["email"] = email
		}
		if name := props.Claims.StringClaim("name"); name != "" {
			resp["name"] = name
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Helper functions

// parseAuthorizeRequest extracts the authorize parameters with a strict
// single-shape rule: required parameters appear exactly once, optional ones
// at most once.
func parseAuthorizeRequest(query url.Values) (broker.AuthorizeRequest, error) {
	clientID, err := singleParam(query, "client_id")
	if err != nil {
		return broker.AuthorizeRequest{}, err
	}
	redirectURI, err := singleParam(query, "redirect_uri")
	if err != nil {
		return broker.AuthorizeRequest{}, err
	}
	responseType, err := singleParam(query, "response_type")
	if err != nil {
		return broker.AuthorizeRequest{}, err
	}
	scope, err := optionalParam(query, "scope")
	if err != nil {
		return broker.AuthorizeRequest{}, err
	}
	state, err := optionalParam(query, "state")
	if err != nil {
		return broker.AuthorizeRequest{}, err
	}

	return broker.AuthorizeRequest{
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		Scopes:       strings.Fields(scope),
		ResponseType: oauth2.ResponseType(responseType),
		State:        state,
	}, nil
}

// singleParam extracts a parameter that must appear exactly once. Repeated
// parameters are ambiguous and rejected outright.
func singleParam(values url.Values, name string) (string, error) {
	v, ok := values[name]
	if !ok || len(v) == 0 || v[0] == "" {
		return "", errors.Errorf("missing parameter %q", name)
	}
	if len(v) > 1 {
		return "", errors.Errorf("repeated parameter %q", name)
	}
	return v[0], nil
}

// optionalParam extracts a parameter that may be absent but must not repeat.
func optionalParam(values url.Values, name string) (string, error) {
	v, ok := values[name]
	if !ok || len(v) == 0 {
		return "", nil
	}
	if len(v) > 1 {
		return "", errors.Errorf("repeated parameter %q", name)
	}
	return v[0], nil
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid Authorization header format")
	}
	if parts[1] == "" {
		return "", errors.New("empty bearer token")
	}
	return parts[1], nil
}

// clientRedirectURL builds the redirect back to the MCP client, carrying the
// broker token response and the client's original state.
func clientRedirectURL(result *broker.CallbackResult) string {
	params := url.Values{}
	params.Set("access_token", utils.Value(result.Tokens.AccessToken))
	params.Set("token_type", result.Tokens.TokenType)
	params.Set("expires_in", strconv.Itoa(result.Tokens.ExpiresIn))
	params.Set("refresh_token", utils.Value(result.Tokens.RefreshToken))
	if result.Tokens.Scope != "" {
		params.Set("scope", result.Tokens.Scope)
	}
	if result.ClientState != "" {
		params.Set("state", result.ClientState)
	}

	separator := "?"
	if strings.Contains(result.ClientRedirectURI, "?") {
		separator = "&"
	}
	return result.ClientRedirectURI + separator + params.Encode()
}

// renderAuthFailure collapses every broker failure to the same generic
// surface. The specific kind is logged server-side only.
func (s *Server) renderAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	log.Warn().Err(err).Str("path", r.URL.Path).Msg("authentication failed")

	status := http.StatusUnauthorized
	if errors.Is(err, broker.ErrInvalidAuthorizeRequest) {
		status = http.StatusBadRequest
	}
	s.renderErrorPage(w, status)
}

func (s *Server) renderErrorPage(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.errorTemplate.Execute(w, nil); err != nil {
		log.Error().Err(err).Msg("error template render")
	}
}

func (s *Server) renderConsentPage(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.consentTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("consent template render")
	}
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
