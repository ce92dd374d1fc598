// Package transaction persists in-flight authorization attempts. One
// Transaction tracks a single authorize→consent→callback round trip and is
// consumed exactly once: either the callback completes it or it expires.
package transaction

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("transaction not found")
	ErrExpired  = errors.New("transaction expired")
)

// Status is the durable state of a transaction between suspension points
// (waiting for the user agent to come back).
type Status string

const (
	// StatusConsentPending is the initial state: the consent view has been
	// issued and the broker is waiting for the user's decision.
	StatusConsentPending Status = "consent_pending"

	// StatusConsentGranted means the user approved and the user agent has
	// been sent to the upstream provider.
	StatusConsentGranted Status = "consent_granted"
)

// Transaction is one in-flight authorize→callback attempt, identified by an
// opaque id. The code verifier never leaves this record except toward the
// upstream token endpoint.
type Transaction struct {
	ID                string    `json:"id"`
	ClientID          string    `json:"clientId"`
	CodeVerifier      string    `json:"codeVerifier"`
	CodeChallenge     string    `json:"codeChallenge"`
	ConsentToken      string    `json:"consentToken"`
	UpstreamState     string    `json:"upstreamState"`
	ClientRedirectURI string    `json:"clientRedirectUri"`
	ClientState       string    `json:"clientState"`
	Scopes            []string  `json:"scopes"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// ExpiredAt reports whether the transaction's TTL has elapsed at the given
// instant.
func (t *Transaction) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Store is the only cross-request shared resource in the broker. It must
// provide read-after-write consistency for a single transaction id; each
// transaction is single-writer/single-reader along the happy path.
type Store interface {
	// Put persists a new transaction until its ExpiresAt.
	Put(ctx context.Context, txn *Transaction) error

	// Get retrieves a live transaction. Expired records yield ErrExpired,
	// unknown ids ErrNotFound.
	Get(ctx context.Context, id string) (*Transaction, error)

	// MarkConsentGranted flips the stored status to StatusConsentGranted.
	// A state transition, not a deletion: the transaction must remain
	// consumable exactly once by the callback step.
	MarkConsentGranted(ctx context.Context, id string) error

	// Consume atomically retrieves and deletes the transaction. A second
	// Consume of the same id yields ErrNotFound, never the record again.
	Consume(ctx context.Context, id string) (*Transaction, error)
}
