// Package broker implements the authorization state machine that sits between
// MCP clients and the upstream identity provider. One authorize attempt moves
// through consent, the upstream redirect and the callback, then ends with the
// broker minting its own token pair for the client.
package broker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"github.com/jrsteele09/go-mcp-broker/claims"
	"github.com/jrsteele09/go-mcp-broker/clients"
	"github.com/jrsteele09/go-mcp-broker/consent"
	"github.com/jrsteele09/go-mcp-broker/oauth2"
	"github.com/jrsteele09/go-mcp-broker/pkce"
	"github.com/jrsteele09/go-mcp-broker/session"
	"github.com/jrsteele09/go-mcp-broker/token"
	"github.com/jrsteele09/go-mcp-broker/transaction"
	"github.com/jrsteele09/go-mcp-broker/upstream"
)

const defaultTransactionTTL = 5 * time.Minute

// UpstreamClient is the provider-facing surface the state machine depends on.
// Satisfied by upstream.Client; faked in tests.
type UpstreamClient interface {
	BuildAuthorizeURL(state, codeChallenge string, scopes []string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*upstream.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*upstream.TokenSet, error)
	IssuerURL() string
	Audience() string
}

// ClaimsValidator verifies upstream identity tokens. Satisfied by
// claims.Validator.
type ClaimsValidator interface {
	Validate(ctx context.Context, rawIDToken, expectedIssuer, expectedAudience string) (*claims.Claims, error)
}

// AuthorizeRequest is the parsed authorize call from an MCP client.
type AuthorizeRequest struct {
	ClientID     string
	RedirectURI  string
	Scopes       []string
	ResponseType oauth2.ResponseType
	State        string
}

// AuthorizeResult carries everything the consent view needs.
type AuthorizeResult struct {
	Transaction *transaction.Transaction
	Consent     consent.Presentation
}

// CallbackResult is the outcome of a completed flow: the broker's token pair
// plus the client redirect the user agent must be returned to.
type CallbackResult struct {
	Tokens            *oauth2.TokenResponse
	GrantID           string
	Subject           string
	ClientRedirectURI string
	ClientState       string
}

// Service is the broker state machine. All methods are safe for concurrent
// use; cross-request state lives only in the injected stores.
type Service struct {
	registry  clients.Repo
	txns      transaction.Store
	consent   *consent.Controller
	upstream  UpstreamClient
	validator ClaimsValidator
	sessions  session.Store
	issuer    *token.Issuer

	txnTTL  time.Duration
	nowFunc func() time.Time
	newID   func() string
}

// ServiceOption modifies a Service instance.
type ServiceOption func(*Service)

// WithTransactionTTL sets how long an in-flight authorize attempt stays
// usable.
func WithTransactionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.txnTTL = ttl
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// NewService wires the state machine over its collaborators.
func NewService(
	registry clients.Repo,
	txns transaction.Store,
	upstreamClient UpstreamClient,
	validator ClaimsValidator,
	sessions session.Store,
	issuer *token.Issuer,
	options ...ServiceOption,
) *Service {
	s := &Service{
		registry:  registry,
		txns:      txns,
		consent:   consent.NewController(txns),
		upstream:  upstreamClient,
		validator: validator,
		sessions:  sessions,
		issuer:    issuer,
		txnTTL:    defaultTransactionTTL,
		nowFunc:   time.Now,
		newID:     func() string { return ksuid.New().String() },
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Authorize starts a new transaction for a registered client: it validates
// the request, creates the PKCE pair, the consent token and the upstream
// state, and persists the transaction with a short TTL. The code verifier
// is stored and never surfaced.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.ResponseType != oauth2.CodeResponseType {
		return nil, errors.Wrapf(ErrInvalidAuthorizeRequest, "unsupported response_type %q", req.ResponseType)
	}

	client, err := s.registry.Get(req.ClientID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidAuthorizeRequest, err.Error())
	}
	if err := client.ValidateRedirectURI(req.RedirectURI); err != nil {
		return nil, errors.Wrap(ErrInvalidAuthorizeRequest, err.Error())
	}
	if err := client.ValidateScopes(req.Scopes); err != nil {
		return nil, errors.Wrap(ErrInvalidAuthorizeRequest, err.Error())
	}

	now := s.nowFunc()
	verifier := pkce.GenerateVerifier()
	txnID := s.newID()

	txn := &transaction.Transaction{
		ID:            txnID,
		ClientID:      client.ID,
		CodeVerifier:  verifier,
		CodeChallenge: pkce.ChallengeFor(verifier),
		ConsentToken:  pkce.NewOpaqueToken(),
		// The transaction id prefix lets the callback locate the record;
		// the opaque suffix keeps the full state unguessable.
		UpstreamState:     txnID + "." + pkce.NewOpaqueToken(),
		ClientRedirectURI: req.RedirectURI,
		ClientState:       req.State,
		Scopes:            req.Scopes,
		Status:            transaction.StatusConsentPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.txnTTL),
	}

	if err := s.txns.Put(ctx, txn); err != nil {
		return nil, errors.Wrap(err, "[Service.Authorize] txns.Put")
	}

	return &AuthorizeResult{
		Transaction: txn,
		Consent:     s.consent.Render(txn, client.Name),
	}, nil
}

// RenderConsent reloads the consent presentation for a pending transaction,
// for a GET of the consent view after authorize.
func (s *Service) RenderConsent(ctx context.Context, transactionID string) (consent.Presentation, error) {
	txn, err := s.txns.Get(ctx, transactionID)
	if err != nil {
		return consent.Presentation{}, mapTransactionErr(err)
	}

	clientName := txn.ClientID
	if client, err := s.registry.Get(txn.ClientID); err == nil {
		clientName = client.Name
	}
	return s.consent.Render(txn, clientName), nil
}

// ConfirmConsent validates the submitted consent token and, on success,
// returns the upstream authorize URL the user agent must be redirected to.
// The PKCE challenge rides along; the verifier stays in the store.
func (s *Service) ConfirmConsent(ctx context.Context, transactionID, consentToken string) (string, error) {
	txn, err := s.consent.Confirm(ctx, transactionID, consentToken)
	if err != nil {
		if errors.Is(err, consent.ErrTokenInvalid) {
			return "", errors.Wrap(ErrConsentTokenInvalid, err.Error())
		}
		return "", mapTransactionErr(err)
	}

	return s.upstream.BuildAuthorizeURL(txn.UpstreamState, txn.CodeChallenge, txn.Scopes), nil
}

// HandleCallback completes the flow: it consumes the transaction named by the
// state, verifies the state byte-for-byte, exchanges the code with the PKCE
// verifier, validates the returned identity token, builds the session and
// mints the broker's own token pair. A transaction survives at most one
// callback regardless of outcome.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	txnID, _, found := strings.Cut(state, ".")
	if !found || txnID == "" {
		return nil, errors.Wrap(ErrStateMismatch, "state carries no transaction id")
	}

	txn, err := s.txns.Consume(ctx, txnID)
	if err != nil {
		return nil, mapTransactionErr(err)
	}

	if state != txn.UpstreamState {
		return nil, errors.Wrap(ErrStateMismatch, "returned state differs from issued state")
	}

	if txn.Status != transaction.StatusConsentGranted {
		return nil, errors.Wrapf(ErrConsentNotGranted, "transaction status %q", txn.Status)
	}

	tokens, err := s.upstream.ExchangeCode(ctx, code, txn.CodeVerifier)
	if err != nil {
		return nil, errors.Wrap(ErrUpstreamExchangeFailed, err.Error())
	}

	verified, err := s.validator.Validate(ctx, tokens.IDToken, s.upstream.IssuerURL(), s.upstream.Audience())
	if err != nil {
		return nil, errors.Wrap(ErrClaimsInvalid, err.Error())
	}

	props, err := session.Build(verified, *tokens)
	if err != nil {
		return nil, errors.Wrap(ErrMissingSubjectClaim, err.Error())
	}

	grantID := uuid.New().String()
	if err := s.sessions.Upsert(grantID, props); err != nil {
		return nil, errors.Wrap(err, "[Service.HandleCallback] sessions.Upsert")
	}

	response, err := s.issuer.Issue(grantID, props.Subject(), txn.ClientID, txn.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.HandleCallback] issuer.Issue")
	}

	return &CallbackResult{
		Tokens:            response,
		GrantID:           grantID,
		Subject:           props.Subject(),
		ClientRedirectURI: txn.ClientRedirectURI,
		ClientState:       txn.ClientState,
	}, nil
}

// Refresh rotates the broker's refresh credential for a client. The presented
// token is single-use; its replacement arrives in the response.
func (s *Service) Refresh(ctx context.Context, refreshToken, clientID string) (*oauth2.TokenResponse, error) {
	response, grantID, err := s.issuer.RefreshGrant(refreshToken, clientID)
	if err != nil {
		return nil, errors.Wrap(ErrRefreshTokenRevoked, err.Error())
	}

	// A rotated credential without live session props is a grant that was
	// logged out between issue and refresh.
	if _, err := s.sessions.Get(grantID); err != nil {
		return nil, errors.Wrap(ErrRefreshTokenRevoked, "no session for grant")
	}
	return response, nil
}

// CurrentUser resolves a broker access token to the caller's session props.
// When the cached upstream access token is at or near expiry the upstream
// token set is refreshed in place, synchronously; a failed refresh fails this
// call rather than returning stale credentials.
func (s *Service) CurrentUser(ctx context.Context, rawAccessToken string) (*session.Props, error) {
	ac, err := s.issuer.Verify(rawAccessToken)
	if err != nil {
		return nil, errors.Wrap(ErrUnauthenticated, err.Error())
	}

	props, err := s.sessions.Get(ac.GrantID)
	if err != nil {
		return nil, errors.Wrap(ErrUnauthenticated, "no session for grant")
	}

	if !props.NeedsRefresh(s.nowFunc()) {
		return props, nil
	}

	if props.Tokens.RefreshToken == "" {
		return nil, errors.Wrap(ErrRefreshTokenRevoked, "no upstream refresh token held")
	}

	refreshed, err := s.upstream.Refresh(ctx, props.Tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, upstream.ErrRefreshRevoked) {
			return nil, errors.Wrap(ErrRefreshTokenRevoked, err.Error())
		}
		return nil, errors.Wrap(err, "[Service.CurrentUser] upstream.Refresh")
	}

	if err := s.sessions.UpdateTokens(ac.GrantID, *refreshed); err != nil {
		return nil, errors.Wrap(err, "[Service.CurrentUser] sessions.UpdateTokens")
	}

	props.Tokens = *refreshed
	return props, nil
}

// Logout invalidates the caller's broker credentials locally: the access
// token's jti is revoked, the refresh credential deleted and the cached
// session props dropped. The upstream refresh token is not revoked.
func (s *Service) Logout(ctx context.Context, rawAccessToken string) error {
	ac, err := s.issuer.Verify(rawAccessToken)
	if err != nil {
		return errors.Wrap(ErrUnauthenticated, err.Error())
	}

	if err := s.issuer.Revoke(ac); err != nil {
		return errors.Wrap(err, "[Service.Logout] issuer.Revoke")
	}
	return s.sessions.Delete(ac.GrantID)
}

func mapTransactionErr(err error) error {
	switch {
	case errors.Is(err, transaction.ErrExpired):
		return errors.Wrap(ErrTransactionExpired, err.Error())
	case errors.Is(err, transaction.ErrNotFound):
		return errors.Wrap(ErrTransactionNotFound, err.Error())
	default:
		return err
	}
}
