package transaction_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-mcp-broker/transaction"
)

func newTxn(id string, ttl time.Duration) *transaction.Transaction {
	now := time.Now()
	return &transaction.Transaction{
		ID:                id,
		ClientID:          "mcp-client",
		CodeVerifier:      "verifier",
		CodeChallenge:     "challenge",
		ConsentToken:      "consent-token",
		UpstreamState:     id + ".opaque",
		ClientRedirectURI: "http://localhost:3000/callback",
		ClientState:       "client-state",
		Scopes:            []string{"openid", "email"},
		Status:            transaction.StatusConsentPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}
}

// storeContract runs the Store behaviour shared by every implementation.
func storeContract(t *testing.T, store transaction.Store) {
	ctx := context.Background()

	t.Run("get returns a stored transaction", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, newTxn("txn-get", time.Minute)))

		got, err := store.Get(ctx, "txn-get")
		require.NoError(t, err)
		require.Equal(t, "txn-get", got.ID)
		require.Equal(t, transaction.StatusConsentPending, got.Status)
		require.Equal(t, []string{"openid", "email"}, got.Scopes)
	})

	t.Run("get of unknown id is not found", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		require.ErrorIs(t, err, transaction.ErrNotFound)
	})

	t.Run("consent transition survives until consume", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, newTxn("txn-consent", time.Minute)))
		require.NoError(t, store.MarkConsentGranted(ctx, "txn-consent"))

		got, err := store.Get(ctx, "txn-consent")
		require.NoError(t, err)
		require.Equal(t, transaction.StatusConsentGranted, got.Status)

		consumed, err := store.Consume(ctx, "txn-consent")
		require.NoError(t, err)
		require.Equal(t, transaction.StatusConsentGranted, consumed.Status)
	})

	t.Run("consume is single-shot", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, newTxn("txn-once", time.Minute)))

		_, err := store.Consume(ctx, "txn-once")
		require.NoError(t, err)

		_, err = store.Consume(ctx, "txn-once")
		require.ErrorIs(t, err, transaction.ErrNotFound)

		_, err = store.Get(ctx, "txn-once")
		require.ErrorIs(t, err, transaction.ErrNotFound)
	})

	t.Run("mark consent on consumed id is not found", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, newTxn("txn-gone", time.Minute)))
		_, err := store.Consume(ctx, "txn-gone")
		require.NoError(t, err)
		require.ErrorIs(t, store.MarkConsentGranted(ctx, "txn-gone"), transaction.ErrNotFound)
	})
}

func TestInMemoryStore(t *testing.T) {
	storeContract(t, transaction.NewInMemoryStore())
}

func TestInMemoryStore_Expiry(t *testing.T) {
	now := time.Now()
	clock := &now
	store := transaction.NewInMemoryStore(transaction.WithNowFunc(func() time.Time { return *clock }))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTxn("txn-ttl", time.Minute)))

	later := now.Add(2 * time.Minute)
	clock = &later

	_, err := store.Get(ctx, "txn-ttl")
	require.ErrorIs(t, err, transaction.ErrExpired)

	// Once evicted the expired record behaves like any unknown id.
	_, err = store.Consume(ctx, "txn-ttl")
	require.ErrorIs(t, err, transaction.ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storeContract(t, transaction.NewRedisStore(client))
}

func TestRedisStore_TTLEviction(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := transaction.NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTxn("txn-redis-ttl", time.Minute)))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "txn-redis-ttl")
	require.ErrorIs(t, err, transaction.ErrNotFound)
}
