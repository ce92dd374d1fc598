// Package session assembles and caches the per-user identity context that is
// attached to every authenticated request.
package session

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-mcp-broker/claims"
	"github.com/jrsteele09/go-mcp-broker/upstream"
)

var (
	// ErrMissingSubject signals an upstream-contract violation: a verified
	// identity token without a usable sub claim.
	ErrMissingSubject = errors.New("identity token missing subject claim")

	ErrNotFound = errors.New("session not found")
)

// refreshSkew is how close to expiry an upstream access token may get before
// it is treated as expired and refreshed.
const refreshSkew = 30 * time.Second

// Props is the identity context for one authenticated user. Immutable after
// creation except for the token set, which is refreshed in place when the
// upstream access token nears expiry.
type Props struct {
	Claims    *claims.Claims
	Tokens    upstream.TokenSet
	CreatedAt time.Time
}

// Build assembles Props from verified claims and the upstream token set.
// Pure assembly; no network or storage calls. claims.Subject is the durable
// per-user identifier for all downstream data isolation, so its absence is a
// hard failure.
func Build(c *claims.Claims, tokens upstream.TokenSet) (*Props, error) {
	if c == nil || strings.TrimSpace(c.Subject) == "" {
		return nil, ErrMissingSubject
	}
	return &Props{
		Claims:    c,
		Tokens:    tokens,
		CreatedAt: time.Now(),
	}, nil
}

// Subject returns the verified per-user identifier.
func (p *Props) Subject() string {
	return p.Claims.Subject
}

// NeedsRefresh reports whether the upstream access token is expired or about
// to expire at the given instant.
func (p *Props) NeedsRefresh(now time.Time) bool {
	if p.Tokens.Expiry.IsZero() {
		return false
	}
	return !now.Add(refreshSkew).Before(p.Tokens.Expiry)
}
