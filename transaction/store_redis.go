package transaction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "txn:"

// RedisStore implements Store on a Redis keyspace. Redis key TTLs act as the
// eviction backstop; ExpiresAt is still checked lazily so a not-yet-evicted
// record past its TTL is reported as expired rather than served.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// RedisStoreOption modifies a RedisStore instance.
type RedisStoreOption func(*RedisStore)

// WithRedisNowFunc sets the clock (primarily for testing).
func WithRedisNowFunc(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

// NewRedisStore creates a transaction store backed by the given Redis client.
func NewRedisStore(client *redis.Client, options ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *RedisStore) Put(ctx context.Context, txn *Transaction) error {
	if txn == nil || txn.ID == "" {
		return ErrNotFound
	}

	payload, err := json.Marshal(txn)
	if err != nil {
		return errors.Wrap(err, "[RedisStore.Put] marshal")
	}

	ttl := txn.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrExpired
	}

	if err := s.client.Set(ctx, redisKeyPrefix+txn.ID, payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "[RedisStore.Put] set")
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Transaction, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisStore.Get] get")
	}
	return s.decodeLive(ctx, id, payload)
}

func (s *RedisStore) MarkConsentGranted(ctx context.Context, id string) error {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	txn.Status = StatusConsentGranted
	payload, err := json.Marshal(txn)
	if err != nil {
		return errors.Wrap(err, "[RedisStore.MarkConsentGranted] marshal")
	}

	// KeepTTL preserves the original expiry set by Put.
	if err := s.client.Set(ctx, redisKeyPrefix+id, payload, redis.KeepTTL).Err(); err != nil {
		return errors.Wrap(err, "[RedisStore.MarkConsentGranted] set")
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, id string) (*Transaction, error) {
	// GETDEL makes retrieve-and-delete a single atomic step, so a repeated
	// callback with the same id cannot observe the record twice.
	payload, err := s.client.GetDel(ctx, redisKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisStore.Consume] getdel")
	}
	return s.decodeLive(ctx, id, payload)
}

func (s *RedisStore) decodeLive(ctx context.Context, id string, payload []byte) (*Transaction, error) {
	var txn Transaction
	if err := json.Unmarshal(payload, &txn); err != nil {
		return nil, errors.Wrap(err, "[RedisStore] unmarshal")
	}
	if txn.ExpiredAt(s.now()) {
		_ = s.client.Del(ctx, redisKeyPrefix+id).Err()
		return nil, ErrExpired
	}
	return &txn, nil
}
