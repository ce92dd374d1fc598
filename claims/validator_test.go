package claims_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-mcp-broker/claims"
)

const (
	testIssuer   = "https://idp.example.com"
	testAudience = "broker-client-id"
)

type fixture struct {
	key       *rsa.PrivateKey
	validator *claims.Validator
	now       time.Time
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}

	return &fixture{
		key: key,
		validator: claims.NewValidator(keySet,
			claims.WithNowFunc(func() time.Time { return now })),
		now: now,
	}
}

func (f *fixture) signToken(t *testing.T, claimSet jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claimSet).SignedString(f.key)
	require.NoError(t, err)
	return raw
}

func (f *fixture) baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   testIssuer,
		"sub":   "user123",
		"aud":   testAudience,
		"exp":   f.now.Add(time.Hour).Unix(),
		"iat":   f.now.Add(-time.Minute).Unix(),
		"email": "user@example.com",
	}
}

func TestValidator_Validate(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		raw := f.signToken(t, f.baseClaims())

		got, err := f.validator.Validate(ctx, raw, testIssuer, testAudience)
		require.NoError(t, err)
		require.Equal(t, "user123", got.Subject)
		require.Equal(t, testIssuer, got.Issuer)
		require.Equal(t, []string{testAudience}, got.Audience)
		require.Equal(t, "user@example.com", got.StringClaim("email"))
	})

	t.Run("audience array form", func(t *testing.T) {
		c := f.baseClaims()
		c["aud"] = []string{"other", testAudience}
		raw := f.signToken(t, c)

		got, err := f.validator.Validate(ctx, raw, testIssuer, testAudience)
		require.NoError(t, err)
		require.Equal(t, []string{"other", testAudience}, got.Audience)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		c := f.baseClaims()
		c["iss"] = "https://evil.example.com"
		raw := f.signToken(t, c)

		_, err := f.validator.Validate(ctx, raw, testIssuer, testAudience)
		require.ErrorIs(t, err, claims.ErrIssuerMismatch)
	})

	t.Run("audience mismatch", func(t *testing.T) {
		c := f.baseClaims()
		c["aud"] = "someone-else"
		raw := f.signToken(t, c)

		_, err := f.validator.Validate(ctx, raw, testIssuer, testAudience)
		require.ErrorIs(t, err, claims.ErrAudienceMismatch)
	})

	t.Run("expired even with valid signature", func(t *testing.T) {
		c := f.baseClaims()
		c["exp"] = f.now.Add(-time.Minute).Unix()
		raw := f.signToken(t, c)

		_, err := f.validator.Validate(ctx, raw, testIssuer, testAudience)
		require.ErrorIs(t, err, claims.ErrExpired)
	})

	t.Run("nbf in the future", func(t *testing.T) {
		c := f.baseClaims()
		c["nbf"] = f.now.Add(time.Hour).Unix()
		raw := f.signToken(t, c)

		_, err := f.validator.Validate(ctx, raw, testIssuer, testAudience)
		require.ErrorIs(t, err, claims.ErrNotYetValid)
	})

	t.Run("missing exp is malformed", func(t *testing.T) {
		c := f.baseClaims()
		delete(c, "exp")
		raw := f.signToken(t, c)

		_, err := f.validator.Validate(ctx, raw, testIssuer, testAudience)
		require.ErrorIs(t, err, claims.ErrMalformed)
	})

	t.Run("signature from another key", func(t *testing.T) {
		other := setupFixture(t)
		raw := other.signToken(t, other.baseClaims())

		_, err := f.validator.Validate(ctx, raw, testIssuer, testAudience)
		require.ErrorIs(t, err, claims.ErrSignatureInvalid)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := f.validator.Validate(ctx, "not-a-jwt", testIssuer, testAudience)
		require.ErrorIs(t, err, claims.ErrMalformed)
	})
}
