package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-mcp-broker/consent"
	"github.com/jrsteele09/go-mcp-broker/transaction"
)

func seedTxn(t *testing.T, store transaction.Store, id, token string) *transaction.Transaction {
	t.Helper()
	now := time.Now()
	txn := &transaction.Transaction{
		ID:           id,
		ClientID:     "mcp-client",
		ConsentToken: token,
		Scopes:       []string{"openid"},
		Status:       transaction.StatusConsentPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Minute),
	}
	require.NoError(t, store.Put(context.Background(), txn))
	return txn
}

func TestController_Render(t *testing.T) {
	store := transaction.NewInMemoryStore()
	ctrl := consent.NewController(store)
	txn := seedTxn(t, store, "txn-1", "tok-1")

	p := ctrl.Render(txn, "Example MCP Client")
	require.Equal(t, "txn-1", p.TransactionID)
	require.Equal(t, "tok-1", p.ConsentToken)
	require.Equal(t, "Example MCP Client", p.ClientName)
	require.Equal(t, []string{"openid"}, p.Scopes)

	// Rendering must not change stored state.
	stored, err := store.Get(context.Background(), "txn-1")
	require.NoError(t, err)
	require.Equal(t, transaction.StatusConsentPending, stored.Status)
}

func TestController_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token grants consent", func(t *testing.T) {
		store := transaction.NewInMemoryStore()
		ctrl := consent.NewController(store)
		seedTxn(t, store, "txn-1", "tok-1")

		txn, err := ctrl.Confirm(ctx, "txn-1", "tok-1")
		require.NoError(t, err)
		require.Equal(t, transaction.StatusConsentGranted, txn.Status)

		// Still present in the store, for the callback step to consume.
		stored, err := store.Get(ctx, "txn-1")
		require.NoError(t, err)
		require.Equal(t, transaction.StatusConsentGranted, stored.Status)
	})

	t.Run("consent token is single-use", func(t *testing.T) {
		store := transaction.NewInMemoryStore()
		ctrl := consent.NewController(store)
		seedTxn(t, store, "txn-1", "tok-1")

		_, err := ctrl.Confirm(ctx, "txn-1", "tok-1")
		require.NoError(t, err)

		_, err = ctrl.Confirm(ctx, "txn-1", "tok-1")
		require.ErrorIs(t, err, consent.ErrTokenInvalid)
	})

	t.Run("cross-transaction token rejected", func(t *testing.T) {
		store := transaction.NewInMemoryStore()
		ctrl := consent.NewController(store)
		seedTxn(t, store, "txn-1", "tok-1")
		seedTxn(t, store, "txn-2", "tok-2")

		_, err := ctrl.Confirm(ctx, "txn-1", "tok-2")
		require.ErrorIs(t, err, consent.ErrTokenInvalid)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		ctrl := consent.NewController(transaction.NewInMemoryStore())
		_, err := ctrl.Confirm(ctx, "missing", "tok")
		require.ErrorIs(t, err, transaction.ErrNotFound)
	})

	t.Run("expired transaction", func(t *testing.T) {
		now := time.Now()
		clock := now
		store := transaction.NewInMemoryStore(transaction.WithNowFunc(func() time.Time { return clock }))
		ctrl := consent.NewController(store)
		seedTxn(t, store, "txn-1", "tok-1")

		clock = now.Add(2 * time.Minute)
		_, err := ctrl.Confirm(ctx, "txn-1", "tok-1")
		require.ErrorIs(t, err, transaction.ErrExpired)
	})
}
