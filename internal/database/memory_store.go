package database

import (
	"context"
	"sync"

	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	enabled bool
	creds   *debrid.Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Enabled(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

func (m *MemoryStore) SetEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	return nil
}

func (m *MemoryStore) LoadCredentials(ctx context.Context) (*debrid.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, nil
	}
	c := *m.creds
	return &c, nil
}

func (m *MemoryStore) SaveCredentials(ctx context.Context, creds *debrid.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if creds == nil {
		m.creds = nil
		return nil
	}
	c := *creds
	m.creds = &c
	return nil
}

func (m *MemoryStore) ClearCredentials(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}
