package refresh

import "sync"

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu     sync.Mutex
	tokens map[string]*StoredRefreshToken
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		tokens: make(map[string]*StoredRefreshToken),
	}
}

func (r *InMemoryRepo) Upsert(refreshToken *StoredRefreshToken) error {
	if refreshToken == nil || refreshToken.Token == "" {
		return ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *refreshToken
	r.tokens[refreshToken.Token] = &cp
	return nil
}

func (r *InMemoryRepo) Get(token string) (*StoredRefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, exists := r.tokens[token]
	if !exists {
		return nil, ErrNotFound
	}

	cp := *rt
	return &cp, nil
}

func (r *InMemoryRepo) Delete(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token]; !exists {
		return ErrNotFound
	}
	delete(r.tokens, token)
	return nil
}

func (r *InMemoryRepo) DeleteByGrantID(grantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for token, rt := range r.tokens {
		if rt.GrantID == grantID {
			delete(r.tokens, token)
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}
