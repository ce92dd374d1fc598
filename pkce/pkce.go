// Package pkce implements the Proof Key for Code Exchange primitives (RFC 7636)
// plus the opaque random tokens the broker uses for CSRF state and consent.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

const (
	// verifierLength is the number of random bytes backing a code verifier.
	// 32 bytes encode to 43 base64url characters, the RFC 7636 minimum.
	verifierLength = 32

	opaqueTokenLength = 32
)

// GenerateVerifier returns a new high-entropy PKCE code verifier.
func GenerateVerifier() string {
	return randomString(verifierLength)
}

// ChallengeFor derives the S256 code challenge for a verifier:
// BASE64URL(SHA256(verifier)), no padding.
func ChallengeFor(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyChallenge reports whether the verifier re-derives to the stored
// challenge. Comparison is constant-time.
func VerifyChallenge(challenge, verifier string) bool {
	derived := ChallengeFor(verifier)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}

// NewOpaqueToken returns a random unguessable token, used for the upstream
// state parameter and for consent tokens.
func NewOpaqueToken() string {
	return randomString(opaqueTokenLength)
}

func randomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// An unreadable entropy source is not a recoverable condition.
		panic("pkce: entropy source failure: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
