package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-mcp-broker/claims"
	"github.com/jrsteele09/go-mcp-broker/session"
	"github.com/jrsteele09/go-mcp-broker/upstream"
)

func testClaims(sub string) *claims.Claims {
	return &claims.Claims{
		Subject: sub,
		Issuer:  "https://idp.example.com",
		Custom:  map[string]any{"sub": sub, "email": "user@example.com"},
	}
}

func testTokens(expiry time.Time) upstream.TokenSet {
	return upstream.TokenSet{
		AccessToken:  "upstream-access",
		Expiry:       expiry,
		IDToken:      "upstream-id",
		RefreshToken: "upstream-refresh",
	}
}

func TestBuild(t *testing.T) {
	t.Run("carries subject and tokens", func(t *testing.T) {
		props, err := session.Build(testClaims("user123"), testTokens(time.Now().Add(time.Hour)))
		require.NoError(t, err)
		require.Equal(t, "user123", props.Subject())
		require.Equal(t, "upstream-refresh", props.Tokens.RefreshToken)
	})

	t.Run("empty subject fails", func(t *testing.T) {
		_, err := session.Build(testClaims("  "), testTokens(time.Now()))
		require.ErrorIs(t, err, session.ErrMissingSubject)
	})

	t.Run("nil claims fail", func(t *testing.T) {
		_, err := session.Build(nil, testTokens(time.Now()))
		require.ErrorIs(t, err, session.ErrMissingSubject)
	})
}

func TestProps_NeedsRefresh(t *testing.T) {
	now := time.Now()

	fresh, err := session.Build(testClaims("u"), testTokens(now.Add(time.Hour)))
	require.NoError(t, err)
	require.False(t, fresh.NeedsRefresh(now))

	stale, err := session.Build(testClaims("u"), testTokens(now.Add(5*time.Second)))
	require.NoError(t, err)
	require.True(t, stale.NeedsRefresh(now))

	expired, err := session.Build(testClaims("u"), testTokens(now.Add(-time.Minute)))
	require.NoError(t, err)
	require.True(t, expired.NeedsRefresh(now))
}

func TestInMemoryStore(t *testing.T) {
	store := session.NewInMemoryStore()

	props, err := session.Build(testClaims("user123"), testTokens(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, store.Upsert("grant-1", props))

	t.Run("get returns stored props", func(t *testing.T) {
		got, err := store.Get("grant-1")
		require.NoError(t, err)
		require.Equal(t, "user123", got.Subject())
	})

	t.Run("update tokens in place", func(t *testing.T) {
		rotated := testTokens(time.Now().Add(2 * time.Hour))
		rotated.RefreshToken = "rotated-refresh"
		require.NoError(t, store.UpdateTokens("grant-1", rotated))

		got, err := store.Get("grant-1")
		require.NoError(t, err)
		require.Equal(t, "rotated-refresh", got.Tokens.RefreshToken)
		require.Equal(t, "user123", got.Subject())
	})

	t.Run("delete destroys the session", func(t *testing.T) {
		require.NoError(t, store.Delete("grant-1"))
		_, err := store.Get("grant-1")
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("update on missing grant fails", func(t *testing.T) {
		require.ErrorIs(t, store.UpdateTokens("missing", testTokens(time.Now())), session.ErrNotFound)
	})
}
