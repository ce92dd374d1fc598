// Package token mints and validates the broker's own credentials: a
// short-lived JWT access token paired with an opaque, rotating refresh token,
// each bound to one grant (one authenticated session).
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-mcp-broker/internal/utils"
	"github.com/jrsteele09/go-mcp-broker/oauth2"
	"github.com/jrsteele09/go-mcp-broker/token/refresh"
)

var (
	ErrAccessTokenInvalid  = errors.New("invalid access token")
	ErrAccessTokenRevoked  = errors.New("access token revoked")
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
)

// AccessClaims are the verified contents of a broker access token.
type AccessClaims struct {
	GrantID  string
	Subject  string
	ClientID string
	Scope    string
	JTI      string
	Expiry   time.Time
}

// IssueHook is the extension point invoked whenever the broker issues or
// refreshes tokens for a caller. Custom persistence or rotation policy hangs
// off this without touching the state machine.
type IssueHook func(grantID string, response *oauth2.TokenResponse)

// Issuer creates and validates broker-issued tokens.
type Issuer struct {
	signer        Signer
	refreshTokens *refresh.Manager
	issuerURL     string
	accessExpiry  time.Duration
	revokedCache  RevokedTokenCache
	hook          IssueHook
	nowFunc       func() time.Time
}

// IssuerOption defines a function type to modify the Issuer instance.
type IssuerOption func(*Issuer)

// WithAccessTokenExpiry sets the access token lifetime.
func WithAccessTokenExpiry(expiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessExpiry = expiry
	}
}

// WithIssuerURL sets the iss claim of minted tokens.
func WithIssuerURL(issuerURL string) IssuerOption {
	return func(i *Issuer) {
		i.issuerURL = issuerURL
	}
}

// WithIssueHook registers the token-exchange extension point.
func WithIssueHook(hook IssueHook) IssuerOption {
	return func(i *Issuer) {
		i.hook = hook
	}
}

// WithRevokedTokenCache sets the revocation cache implementation.
func WithRevokedTokenCache(cache RevokedTokenCache) IssuerOption {
	return func(i *Issuer) {
		i.revokedCache = cache
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// NewIssuer initializes an Issuer with the given signer and refresh manager.
func NewIssuer(signer Signer, refreshTokens *refresh.Manager, options ...IssuerOption) *Issuer {
	i := &Issuer{
		signer:        signer,
		refreshTokens: refreshTokens,
		revokedCache:  NewInMemoryRevokedTokenCache(),
		nowFunc:       time.Now,
	}

	for _, opt := range options {
		opt(i)
	}

	if i.accessExpiry == 0 {
		i.accessExpiry = 5 * time.Minute
	}
	return i
}

// Issue mints the token pair for a grant: a signed access JWT plus a fresh
// refresh credential. Called once per successful callback and once per
// refresh grant.
func (i *Issuer) Issue(grantID, subject, clientID string, scopes []string) (*oauth2.TokenResponse, error) {
	scope := strings.Join(scopes, " ")

	claims := jwt.MapClaims{
		"iss":   i.issuerURL,
		"sub":   subject,
		"aud":   clientID,
		"grant": grantID,
		"scope": scope,
		"iat":   i.nowFunc().Unix(),
		"exp":   i.nowFunc().Add(i.accessExpiry).Unix(),
		"jti":   uuid.New().String(),
	}

	accessToken, err := i.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] Sign")
	}

	refreshToken, err := i.refreshTokens.Create(grantID, clientID, subject, scope)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] refresh Create")
	}

	response := &oauth2.TokenResponse{
		AccessToken:  utils.Ptr(accessToken),
		TokenType:    "bearer",
		ExpiresIn:    int(i.accessExpiry.Seconds()),
		RefreshToken: utils.Ptr(refreshToken),
		Scope:        scope,
	}

	if i.hook != nil {
		i.hook(grantID, response)
	}
	return response, nil
}

// Verify parses and validates a broker access token and returns its claims.
func (i *Issuer) Verify(rawToken string) (*AccessClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrAccessTokenInvalid
	}

	parsed, err := jwt.Parse(rawToken, i.signer.GetVerificationKey,
		jwt.WithTimeFunc(i.nowFunc))
	if err != nil || !parsed.Valid {
		return nil, ErrAccessTokenInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrAccessTokenInvalid
	}

	jti, _ := mapClaims["jti"].(string)
	if jti == "" || i.revokedCache.IsRevoked(jti) {
		return nil, ErrAccessTokenRevoked
	}

	grantID, _ := mapClaims["grant"].(string)
	sub, _ := mapClaims["sub"].(string)
	aud, _ := mapClaims["aud"].(string)
	scope, _ := mapClaims["scope"].(string)
	exp, _ := mapClaims["exp"].(float64)

	if grantID == "" {
		return nil, ErrAccessTokenInvalid
	}

	return &AccessClaims{
		GrantID:  grantID,
		Subject:  sub,
		ClientID: aud,
		Scope:    scope,
		JTI:      jti,
		Expiry:   time.Unix(int64(exp), 0),
	}, nil
}

// RefreshGrant rotates a refresh credential: the presented token is consumed
// (single-use) and a new token pair is minted for the same grant.
func (i *Issuer) RefreshGrant(refreshToken, clientID string) (*oauth2.TokenResponse, string, error) {
	rt, err := i.refreshTokens.Consume(refreshToken)
	if err != nil {
		return nil, "", ErrRefreshTokenInvalid
	}

	if rt.ClientID != clientID {
		return nil, "", ErrRefreshTokenInvalid
	}

	response, err := i.Issue(rt.GrantID, rt.Subject, rt.ClientID, strings.Fields(rt.Scope))
	if err != nil {
		return nil, "", errors.Wrap(err, "[Issuer.RefreshGrant] Issue")
	}
	return response, rt.GrantID, nil
}

// Revoke invalidates an access token ahead of its natural expiry and removes
// any refresh credential for its grant. Used by logout.
func (i *Issuer) Revoke(ac *AccessClaims) error {
	if err := i.revokedCache.Add(ac.JTI, ac.Expiry); err != nil {
		return errors.Wrap(err, "[Issuer.Revoke] revokedCache.Add")
	}
	return i.refreshTokens.RevokeGrant(ac.GrantID)
}
