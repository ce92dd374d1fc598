package oauth2

// TokenResponse is the standard OAuth2 token endpoint response format as
// defined in RFC 6749. The broker returns it both on the upstream callback
// (initial issuance) and from the token endpoint (refresh grant).
type TokenResponse struct {
	// AccessToken is the broker-minted JWT used on subsequent requests.
	// Usage: "Authorization: Bearer <access_token>". Short-lived (minutes).
	AccessToken *string `json:"access_token,omitempty"`

	// TokenType is always "bearer" in this implementation.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token. A hint -
	// the authoritative expiry is the JWT's "exp" claim.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is an opaque credential used to obtain new access tokens.
	// Single-use: it rotates on every refresh grant. Lifetime up to an hour.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space-separated list of granted scopes.
	Scope string `json:"scope,omitempty"`
}
