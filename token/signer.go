package token

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer is an interface for signing and verifying broker-issued JWTs.
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey returns the key material used to verify a parsed token
	GetVerificationKey(token *jwt.Token) (any, error)
}

// HMACsigner implements Signer using symmetric HMAC-SHA256
type HMACsigner struct {
	secret []byte
}

// NewHMACSigner creates a new HMAC signer with the given secret
func NewHMACSigner(secret string) *HMACsigner {
	return &HMACsigner{
		secret: []byte(secret),
	}
}

func (h *HMACsigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACsigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

// KeyPairSigner implements Signer using RSA with RS256
type KeyPairSigner struct {
	privateKey *rsa.PrivateKey
	keyID      string
}

// NewKeyPairSigner creates a new signer over the given RSA private key
func NewKeyPairSigner(privateKey *rsa.PrivateKey, keyID string) *KeyPairSigner {
	return &KeyPairSigner{
		privateKey: privateKey,
		keyID:      keyID,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if a.keyID != "" {
		token.Header["kid"] = a.keyID
	}

	signedToken, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with asymmetric key")
	}
	return signedToken, nil
}

func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &a.privateKey.PublicKey, nil
}
