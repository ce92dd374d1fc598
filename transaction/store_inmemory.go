package transaction

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe in-memory implementation of Store. Expiry is
// enforced lazily on access; there is no background sweeper.
type InMemoryStore struct {
	mu   sync.Mutex
	txns map[string]*Transaction
	now  func() time.Time
}

// InMemoryStoreOption modifies an InMemoryStore instance.
type InMemoryStoreOption func(*InMemoryStore)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) InMemoryStoreOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

// NewInMemoryStore creates a new in-memory transaction store.
func NewInMemoryStore(options ...InMemoryStoreOption) *InMemoryStore {
	s := &InMemoryStore{
		txns: make(map[string]*Transaction),
		now:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Put(_ context.Context, txn *Transaction) error {
	if txn == nil || txn.ID == "" {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *txn
	s.txns[txn.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.liveLocked(id)
	if err != nil {
		return nil, err
	}

	cp := *txn
	return &cp, nil
}

func (s *InMemoryStore) MarkConsentGranted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.liveLocked(id)
	if err != nil {
		return err
	}

	txn.Status = StatusConsentGranted
	return nil
}

func (s *InMemoryStore) Consume(_ context.Context, id string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.liveLocked(id)
	if err != nil {
		return nil, err
	}

	delete(s.txns, id)
	cp := *txn
	return &cp, nil
}

// liveLocked returns the stored transaction if it exists and has not expired.
// Expired records are evicted on the spot.
func (s *InMemoryStore) liveLocked(id string) (*Transaction, error) {
	txn, exists := s.txns[id]
	if !exists {
		return nil, ErrNotFound
	}
	if txn.ExpiredAt(s.now()) {
		delete(s.txns, id)
		return nil, ErrExpired
	}
	return txn, nil
}
