package pkce_test

import (
	"testing"

	"github.com/jrsteele09/go-mcp-broker/pkce"
	"github.com/stretchr/testify/require"
)

// RFC 7636 appendix B test vector.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestChallengeFor_RFCVector(t *testing.T) {
	require.Equal(t, rfcChallenge, pkce.ChallengeFor(rfcVerifier))
}

func TestGenerateVerifier(t *testing.T) {
	t.Run("meets minimum length", func(t *testing.T) {
		v := pkce.GenerateVerifier()
		require.GreaterOrEqual(t, len(v), 43)
	})

	t.Run("round-trips through VerifyChallenge", func(t *testing.T) {
		v := pkce.GenerateVerifier()
		c := pkce.ChallengeFor(v)
		require.True(t, pkce.VerifyChallenge(c, v))
	})

	t.Run("rejects a different verifier", func(t *testing.T) {
		c := pkce.ChallengeFor(pkce.GenerateVerifier())
		require.False(t, pkce.VerifyChallenge(c, pkce.GenerateVerifier()))
	})

	t.Run("unique per call", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			v := pkce.GenerateVerifier()
			require.False(t, seen[v])
			seen[v] = true
		}
	})
}

func TestNewOpaqueToken(t *testing.T) {
	a := pkce.NewOpaqueToken()
	b := pkce.NewOpaqueToken()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}
