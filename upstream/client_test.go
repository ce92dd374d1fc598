package upstream_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/oauth2-proxy/mockoidc"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-mcp-broker/claims"
	"github.com/jrsteele09/go-mcp-broker/pkce"
	"github.com/jrsteele09/go-mcp-broker/upstream"
)

const callbackURL = "http://127.0.0.1/oauth2/callback"

func setupProvider(t *testing.T) (*mockoidc.MockOIDC, *upstream.Client) {
	t.Helper()

	m, err := mockoidc.Run()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })

	client, err := upstream.NewClient(context.Background(), upstream.Config{
		IssuerURL:    m.Issuer(),
		ClientID:     m.Config().ClientID,
		ClientSecret: m.Config().ClientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"openid", "email"},
	})
	require.NoError(t, err)
	return m, client
}

// authorize drives the provider's authorize endpoint without following the
// redirect and returns the code and state it hands back.
func authorize(t *testing.T, authorizeURL string) (code, state string) {
	t.Helper()

	httpClient := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := httpClient.Get(authorizeURL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := resp.Location()
	require.NoError(t, err)
	return loc.Query().Get("code"), loc.Query().Get("state")
}

func TestClient_BuildAuthorizeURL(t *testing.T) {
	_, client := setupProvider(t)

	verifier := pkce.GenerateVerifier()
	u, err := url.Parse(client.BuildAuthorizeURL("state-1", pkce.ChallengeFor(verifier), nil))
	require.NoError(t, err)

	q := u.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, pkce.ChallengeFor(verifier), q.Get("code_challenge"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, callbackURL, q.Get("redirect_uri"))
	require.NotContains(t, u.String(), verifier)
}

func TestClient_ExchangeCode(t *testing.T) {
	ctx := context.Background()

	t.Run("code and verifier yield a full token set", func(t *testing.T) {
		m, client := setupProvider(t)
		m.QueueUser(&mockoidc.MockUser{
			Subject: "user123",
			Email:   "user123@example.com",
		})

		verifier := pkce.GenerateVerifier()
		code, state := authorize(t, client.BuildAuthorizeURL("state-1", pkce.ChallengeFor(verifier), nil))
		require.Equal(t, "state-1", state)

		set, err := client.ExchangeCode(ctx, code, verifier)
		require.NoError(t, err)
		require.NotEmpty(t, set.AccessToken)
		require.NotEmpty(t, set.RefreshToken)
		require.NotEmpty(t, set.IDToken)

		// The identity token verifies against the provider's published keys.
		verified, err := claims.NewValidator(client.KeySet()).
			Validate(ctx, set.IDToken, client.IssuerURL(), client.Audience())
		require.NoError(t, err)
		require.Equal(t, "user123", verified.Subject)
	})

	t.Run("wrong verifier is rejected", func(t *testing.T) {
		_, client := setupProvider(t)

		verifier := pkce.GenerateVerifier()
		code, _ := authorize(t, client.BuildAuthorizeURL("state-1", pkce.ChallengeFor(verifier), nil))

		_, err := client.ExchangeCode(ctx, code, pkce.GenerateVerifier())
		require.ErrorIs(t, err, upstream.ErrExchangeFailed)
	})

	t.Run("garbage code is rejected", func(t *testing.T) {
		_, client := setupProvider(t)
		_, err := client.ExchangeCode(ctx, "not-a-code", pkce.GenerateVerifier())
		require.ErrorIs(t, err, upstream.ErrExchangeFailed)
	})
}

func TestClient_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates the token set", func(t *testing.T) {
		_, client := setupProvider(t)

		verifier := pkce.GenerateVerifier()
		code, _ := authorize(t, client.BuildAuthorizeURL("state-1", pkce.ChallengeFor(verifier), nil))
		set, err := client.ExchangeCode(ctx, code, verifier)
		require.NoError(t, err)

		refreshed, err := client.Refresh(ctx, set.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, refreshed.AccessToken)

		// A provider that does not rotate the refresh token keeps the old
		// one in force.
		require.NotEmpty(t, refreshed.RefreshToken)
	})

	t.Run("unknown refresh token is a revocation", func(t *testing.T) {
		_, client := setupProvider(t)
		_, err := client.Refresh(ctx, "no-such-token")
		require.ErrorIs(t, err, upstream.ErrRefreshRevoked)
	})
}

func TestNewClient_DiscoveryFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := upstream.NewClient(ctx, upstream.Config{
		IssuerURL: "http://127.0.0.1:1/unreachable",
		ClientID:  "client",
	})
	require.ErrorIs(t, err, upstream.ErrUnavailable)
}
