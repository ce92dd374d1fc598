// Package upstream talks to the identity provider: it builds the authorize
// redirect, exchanges authorization codes for tokens and refreshes expiring
// token sets.
package upstream

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

var (
	// ErrExchangeFailed means the provider rejected the code/verifier pair.
	// Not retryable: an authorization code is single-use.
	ErrExchangeFailed = errors.New("upstream code exchange failed")

	// ErrRefreshRevoked means the provider rejected the refresh token. The
	// caller must restart the full authorize flow, not merely refresh.
	ErrRefreshRevoked = errors.New("upstream refresh token revoked")

	// ErrUnavailable is a transport-level failure, retryable by the caller
	// with backoff.
	ErrUnavailable = errors.New("upstream provider unavailable")
)

const discoveryMaxTries = 4

// TokenSet is the opaque token material returned by the provider. Consumers
// only inspect Expiry for TTL bookkeeping.
type TokenSet struct {
	AccessToken  string
	TokenType    string
	Expiry       time.Time
	IDToken      string
	RefreshToken string
}

// Config carries the externally supplied provider settings.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string // The broker's own callback endpoint
	Scopes       []string
}

// Client is the broker's OAuth2/OIDC client toward the upstream provider.
type Client struct {
	cfg    Config
	oauth  *oauth2.Config
	keySet oidc.KeySet
}

// NewClient runs OIDC discovery against the configured issuer and wires up
// the token endpoints. Discovery is an idempotent read, so it is retried
// with bounded exponential backoff; nothing else in this client auto-retries.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	provider, err := backoff.Retry(ctx, func() (*oidc.Provider, error) {
		return oidc.NewProvider(ctx, cfg.IssuerURL)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(discoveryMaxTries))
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}

	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil || meta.JWKSURL == "" {
		return nil, errors.Wrap(ErrUnavailable, "provider metadata missing jwks_uri")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID}
	}

	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		keySet: oidc.NewRemoteKeySet(ctx, meta.JWKSURL),
	}, nil
}

// BuildAuthorizeURL constructs the provider redirect for the given state and
// code challenge. Always response_type=code with the S256 PKCE method; the
// verifier itself never appears in any URL.
func (c *Client) BuildAuthorizeURL(state, codeChallenge string, scopes []string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if len(scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(scopes, " ")))
	}
	return c.oauth.AuthCodeURL(state, opts...)
}

// ExchangeCode POSTs the authorization code and PKCE verifier to the token
// endpoint. The verifier is sent to no other party.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	tok, err := c.oauth.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return nil, classify(err, ErrExchangeFailed)
	}
	return tokenSetFrom(tok, ""), nil
}

// Refresh rotates the given refresh token for a new token set. On success
// the old refresh token is superseded; when the provider does not return a
// replacement the original remains in force and is carried over.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	ts := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, classify(err, ErrRefreshRevoked)
	}
	return tokenSetFrom(tok, refreshToken), nil
}

// KeySet exposes the provider's published signing keys for identity-token
// validation.
func (c *Client) KeySet() oidc.KeySet {
	return c.keySet
}

// IssuerURL returns the configured issuer, the expected iss of identity
// tokens.
func (c *Client) IssuerURL() string {
	return c.cfg.IssuerURL
}

// Audience returns the expected aud of identity tokens: the broker's own
// upstream client id.
func (c *Client) Audience() string {
	return c.cfg.ClientID
}

func tokenSetFrom(tok *oauth2.Token, previousRefresh string) *TokenSet {
	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		RefreshToken: tok.RefreshToken,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = idToken
	}
	if set.RefreshToken == "" {
		set.RefreshToken = previousRefresh
	}
	return set
}

// classify separates provider rejections (non-retryable) from transport
// failures (retryable). A 5xx from the token endpoint counts as transport.
func classify(err error, rejection error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return errors.Wrap(ErrUnavailable, err.Error())
		}
		return errors.Wrap(rejection, err.Error())
	}
	return errors.Wrap(ErrUnavailable, err.Error())
}
