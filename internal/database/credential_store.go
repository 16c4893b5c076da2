package database

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

const (
	keyEnabled     = "realdebrid.enabled"
	keyCredentials = "realdebrid.credentials"
)

// ErrSecretRequired is returned when no credential secret is configured.
var ErrSecretRequired = errors.New("credential secret is required")

// CredentialStore keeps the enabled flag and the sealed credential blob in
// the debrid_settings table.
type CredentialStore struct {
	db   *DB
	aead cipher.AEAD
	now  func() time.Time
}

// NewCredentialStore derives the sealing key from secret.
func NewCredentialStore(db *DB, secret string) (*CredentialStore, error) {
	aead, err := newSealer(secret)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{db: db, aead: aead, now: time.Now}, nil
}

func newSealer(secret string) (cipher.AEAD, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretRequired
	}
	key := blake2b.Sum256([]byte(secret))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return aead, nil
}

func (s *CredentialStore) Enabled(ctx context.Context) (bool, error) {
	value, ok, err := s.get(ctx, keyEnabled)
	if err != nil || !ok {
		return false, err
	}
	return value == "true", nil
}

func (s *CredentialStore) SetEnabled(ctx context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return s.set(ctx, keyEnabled, value)
}

func (s *CredentialStore) LoadCredentials(ctx context.Context) (*debrid.Credentials, error) {
	value, ok, err := s.get(ctx, keyCredentials)
	if err != nil || !ok {
		return nil, err
	}
	plain, err := s.open(value)
	if err != nil {
		return nil, err
	}
	var creds debrid.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &creds, nil
}

func (s *CredentialStore) SaveCredentials(ctx context.Context, creds *debrid.Credentials) error {
	if creds == nil {
		return s.ClearCredentials(ctx)
	}
	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	sealed, err := s.seal(plain)
	if err != nil {
		return err
	}
	return s.set(ctx, keyCredentials, sealed)
}

func (s *CredentialStore) ClearCredentials(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM debrid_settings WHERE key = ?"), keyCredentials); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (s *CredentialStore) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT value FROM debrid_settings WHERE key = ?"), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *CredentialStore) set(ctx context.Context, key, value string) error {
	query := s.db.Rebind(`INSERT INTO debrid_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, key, value, s.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *CredentialStore) seal(plain []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plain, []byte(keyCredentials))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *CredentialStore) open(value string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode sealed credentials: %w", err)
	}
	if len(data) < s.aead.NonceSize() {
		return nil, fmt.Errorf("sealed credentials too short")
	}
	nonce, sealed := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, sealed, []byte(keyCredentials))
	if err != nil {
		return nil, fmt.Errorf("unseal credentials (wrong CREDENTIAL_SECRET?): %w", err)
	}
	return plain, nil
}
