package clients

import "sync"

// InMemoryRepo is a thread-safe in-memory client registry, seeded from
// configuration at startup.
type InMemoryRepo struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		clients: make(map[string]*Client),
	}
}

func (r *InMemoryRepo) Upsert(client *Client) error {
	if client == nil || client.ID == "" {
		return ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *client
	r.clients[client.ID] = &cp
	return nil
}

func (r *InMemoryRepo) Get(clientID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[clientID]
	if !exists {
		return nil, ErrNotFound
	}

	cp := *client
	return &cp, nil
}

func (r *InMemoryRepo) List() ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		cp := *client
		list = append(list, &cp)
	}
	return list, nil
}
