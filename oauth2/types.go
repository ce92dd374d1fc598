// Package oauth2 holds the wire-level OAuth 2.0 types shared between the
// broker service and its HTTP surface.
package oauth2

// ResponseType represents the OAuth 2.0 response type requested at the
// authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow. This broker
	// accepts no other response type.
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge
// method. The broker always uses S256 toward the upstream provider.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing of the code verifier:
	// code_challenge = BASE64URL(SHA256(code_verifier)).
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// RefreshTokenGrant rotates the broker-issued refresh credential for a
	// fresh access token. The only grant the broker token endpoint serves;
	// the initial token issuance happens on the upstream callback.
	RefreshTokenGrant GrantType = "refresh_token"
)
