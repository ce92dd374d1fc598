package session

import (
	"sync"

	"github.com/jrsteele09/go-mcp-broker/upstream"
)

// Store caches Props keyed by grant id (the binding between a broker-issued
// credential and one identity context). Nothing here outlives logout or
// natural expiry; the broker keeps no long-term session table.
type Store interface {
	Upsert(grantID string, props *Props) error
	Get(grantID string) (*Props, error)

	// UpdateTokens is the refresh-in-place mutation: the only change Props
	// permit after creation.
	UpdateTokens(grantID string, tokens upstream.TokenSet) error

	Delete(grantID string) error
}

// InMemoryStore is a thread-safe in-memory implementation of Store. The
// store's lock serializes mutations per grant; two different users' grants
// share no mutable state beyond the map itself.
type InMemoryStore struct {
	mu    sync.RWMutex
	props map[string]*Props
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		props: make(map[string]*Props),
	}
}

func (s *InMemoryStore) Upsert(grantID string, props *Props) error {
	if grantID == "" || props == nil {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *props
	s.props[grantID] = &cp
	return nil
}

func (s *InMemoryStore) Get(grantID string) (*Props, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	props, exists := s.props[grantID]
	if !exists {
		return nil, ErrNotFound
	}

	cp := *props
	return &cp, nil
}

func (s *InMemoryStore) UpdateTokens(grantID string, tokens upstream.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, exists := s.props[grantID]
	if !exists {
		return ErrNotFound
	}

	props.Tokens = tokens
	return nil
}

func (s *InMemoryStore) Delete(grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.props, grantID)
	return nil
}
