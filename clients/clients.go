// Package clients is the broker's minimal registry of known MCP clients:
// just enough to validate redirect URIs, scopes and (for confidential
// clients) a secret. No dynamic registration.
package clients

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidScope       = errors.New("invalid scope")
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")
	ErrInvalidSecret      = errors.New("invalid client secret")
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side MCP clients)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (local/desktop MCP clients)
)

type Client struct {
	ID           string     `json:"id"`
	Type         ClientType `json:"type"` // public or confidential
	Name         string     `json:"name"` // Shown on the consent page
	SecretHash   string     `json:"-"`    // bcrypt hash, empty for public clients
	RedirectURIs []string   `json:"redirectURIs"`
	Scopes       []string   `json:"scopes"` // Allowed scopes for this client
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidateScopes checks if all requested scopes are allowed for this client
func (c *Client) ValidateScopes(requestedScopes []string) error {
	for _, scope := range requestedScopes {
		if scope == "" {
			continue
		}
		if !c.HasScope(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}

// ValidateRedirectURI requires an exact match against a registered URI.
// No prefix or wildcard matching.
func (c *Client) ValidateRedirectURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return ErrInvalidRedirectURI
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return nil
		}
	}
	return ErrInvalidRedirectURI
}

// CheckSecret compares a presented secret against the stored bcrypt hash.
// Public clients carry no secret and always fail this check.
func (c *Client) CheckSecret(secret string) error {
	if c.SecretHash == "" {
		return ErrInvalidSecret
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return ErrInvalidSecret
	}
	return nil
}

// HashSecret produces the bcrypt hash stored in the registry.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
