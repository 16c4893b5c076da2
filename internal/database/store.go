package database

import (
	"context"

	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

// Store is the persistence surface shared by the auth coordinator and the
// Real-Debrid client.
type Store interface {
	debrid.TokenStore
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

var (
	_ Store = (*CredentialStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
