// Package claims verifies identity tokens returned by the upstream provider.
// This is the trust boundary: every downstream claim (notably sub, used for
// user isolation) is only as trustworthy as this validation step.
package claims

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-mcp-broker/internal/utils"
)

// Distinct failure kinds, so callers can log precisely while still collapsing
// everything to a generic surface for the end client.
var (
	ErrMalformed        = errors.New("identity token malformed")
	ErrSignatureInvalid = errors.New("identity token signature invalid")
	ErrIssuerMismatch   = errors.New("identity token issuer mismatch")
	ErrAudienceMismatch = errors.New("identity token audience mismatch")
	ErrExpired          = errors.New("identity token expired")
	ErrNotYetValid      = errors.New("identity token not yet valid")
)

// Claims holds the verified fields of an upstream identity token.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	Expiry   time.Time
	IssuedAt time.Time

	// Custom is the full decoded claim set, including provider-specific
	// fields such as email or name.
	Custom map[string]any
}

// Validator checks signature, issuer, audience and the time-based claims of
// an identity token against the issuer's published signing keys. It has no
// side effects.
type Validator struct {
	keySet oidc.KeySet
	now    func() time.Time
}

// ValidatorOption modifies a Validator instance.
type ValidatorOption func(*Validator)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator creates a validator over the given key set, typically the
// upstream provider's remote JWKS.
func NewValidator(keySet oidc.KeySet, options ...ValidatorOption) *Validator {
	v := &Validator{
		keySet: keySet,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Validate verifies rawIDToken and returns its claims. Signature, issuer,
// audience, expiry and (when present) iat/nbf failures each surface as their
// own error kind.
func (v *Validator) Validate(ctx context.Context, rawIDToken, expectedIssuer, expectedAudience string) (*Claims, error) {
	if _, err := decodePayloadSegment(rawIDToken); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	payload, err := v.keySet.VerifySignature(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(ErrSignatureInvalid, err.Error())
	}

	var registered struct {
		Issuer    string        `json:"iss"`
		Subject   string        `json:"sub"`
		Audience  audienceClaim `json:"aud"`
		Expiry    *float64      `json:"exp"`
		IssuedAt  *float64      `json:"iat"`
		NotBefore *float64      `json:"nbf"`
	}
	if err := json.Unmarshal(payload, &registered); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	if registered.Issuer != expectedIssuer {
		return nil, errors.Wrapf(ErrIssuerMismatch, "got %q want %q", registered.Issuer, expectedIssuer)
	}

	if !contains(registered.Audience, expectedAudience) {
		return nil, errors.Wrapf(ErrAudienceMismatch, "audience %v does not include %q", []string(registered.Audience), expectedAudience)
	}

	if registered.Expiry == nil {
		return nil, errors.Wrap(ErrMalformed, "missing exp claim")
	}

	now := v.now()
	expiry := time.Unix(int64(*registered.Expiry), 0)
	if now.After(expiry) {
		return nil, errors.Wrapf(ErrExpired, "expired at %s", expiry.UTC().Format(time.RFC3339))
	}

	var issuedAt time.Time
	if registered.IssuedAt != nil {
		issuedAt = time.Unix(int64(*registered.IssuedAt), 0)
		if issuedAt.After(now) {
			return nil, errors.Wrap(ErrNotYetValid, "iat is in the future")
		}
	}
	if registered.NotBefore != nil {
		if nbf := time.Unix(int64(*registered.NotBefore), 0); nbf.After(now) {
			return nil, errors.Wrap(ErrNotYetValid, "nbf is in the future")
		}
	}

	var custom map[string]any
	if err := json.Unmarshal(payload, &custom); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	return &Claims{
		Subject:  registered.Subject,
		Issuer:   registered.Issuer,
		Audience: registered.Audience,
		Expiry:   expiry,
		IssuedAt: issuedAt,
		Custom:   custom,
	}, nil
}

// StringClaim returns a custom claim as a string, or "" when absent or of
// another type.
func (c *Claims) StringClaim(name string) string {
	s, _ := c.Custom[name].(string)
	return s
}

// audienceClaim accepts the two JSON shapes RFC 7519 allows for aud: a single
// string or an array of strings.
type audienceClaim []string

func (a *audienceClaim) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*a = audienceClaim{single}
		return nil
	}
	var many []any
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*a = audienceClaim(utils.ToStringSlice(many))
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func decodePayloadSegment(rawToken string) ([]byte, error) {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return nil, errors.Errorf("expected 3 segments, got %d", len(parts))
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}
