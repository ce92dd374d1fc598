package broker

import "github.com/pkg/errors"

// The broker's failure kinds. Handlers collapse every one of these to the
// same generic "authentication failed" surface; the distinct kinds exist for
// server-side logging and for tests.
var (
	ErrTransactionNotFound = errors.New("authorization transaction not found")
	ErrTransactionExpired  = errors.New("authorization transaction expired")

	// ErrStateMismatch means the callback state did not byte-for-byte match
	// the state issued for the transaction. Treated as a CSRF attempt.
	ErrStateMismatch = errors.New("callback state mismatch")

	ErrConsentTokenInvalid = errors.New("consent token invalid")

	// ErrConsentNotGranted means a callback arrived for a transaction that
	// never passed the consent step.
	ErrConsentNotGranted = errors.New("consent not granted")

	ErrUpstreamExchangeFailed = errors.New("upstream exchange failed")

	// ErrClaimsInvalid wraps the specific claims validation failure.
	ErrClaimsInvalid = errors.New("identity claims invalid")

	ErrMissingSubjectClaim = errors.New("identity token missing subject claim")

	// ErrRefreshTokenRevoked means restart the flow from authorize; the
	// credential cannot be rotated again.
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")

	ErrUnauthenticated = errors.New("unauthenticated")

	ErrInvalidAuthorizeRequest = errors.New("invalid authorize request")
)
