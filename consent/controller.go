// Package consent implements the broker's local consent gate. The gate runs
// before the user agent is handed to the upstream provider, so the broker can
// record approval and defend against blind redirect confusion.
package consent

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-mcp-broker/transaction"
)

var (
	// ErrTokenInvalid covers reused consent tokens, cross-transaction tokens
	// and plain mismatches. One error kind on purpose: the caller surface
	// must not distinguish them.
	ErrTokenInvalid = errors.New("consent token invalid")
)

// Presentation is the data needed to render the consent view. Producing it
// mutates nothing.
type Presentation struct {
	TransactionID string
	ConsentToken  string
	ClientName    string
	Scopes        []string
	ExpiresAt     time.Time
}

// Controller validates consent submissions against stored transactions.
type Controller struct {
	store transaction.Store
}

// NewController creates a consent controller over the given transaction store.
func NewController(store transaction.Store) *Controller {
	return &Controller{store: store}
}

// Render produces the presentation data for a transaction's consent view.
func (c *Controller) Render(txn *transaction.Transaction, clientName string) Presentation {
	return Presentation{
		TransactionID: txn.ID,
		ConsentToken:  txn.ConsentToken,
		ClientName:    clientName,
		Scopes:        txn.Scopes,
		ExpiresAt:     txn.ExpiresAt,
	}
}

// Confirm validates a submitted consent token and flips the transaction to
// consent_granted. Returns the updated transaction so the caller can build
// the upstream redirect. The transaction itself stays in the store; only the
// callback step consumes it.
func (c *Controller) Confirm(ctx context.Context, transactionID, consentToken string) (*transaction.Transaction, error) {
	txn, err := c.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	// A transaction already past consent means token reuse.
	if txn.Status != transaction.StatusConsentPending {
		return nil, ErrTokenInvalid
	}

	if subtle.ConstantTimeCompare([]byte(txn.ConsentToken), []byte(consentToken)) != 1 {
		return nil, ErrTokenInvalid
	}

	if err := c.store.MarkConsentGranted(ctx, transactionID); err != nil {
		return nil, err
	}

	txn.Status = transaction.StatusConsentGranted
	return txn, nil
}
