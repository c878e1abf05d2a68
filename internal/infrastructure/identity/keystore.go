package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

// FileKeyStore persists the wallet key as a hex-encoded file with owner-only
// permissions.
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a key store at the given path.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Load implements KeyStore.
func (s *FileKeyStore) Load(context.Context) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: key file: %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("identity: read key file: %w", err)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("identity: decode key file: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("identity: %w: key file has %d bytes", shared.ErrValidation, len(key))
	}
	return key, nil
}

// Store implements KeyStore.
func (s *FileKeyStore) Store(_ context.Context, key ed25519.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("identity: create key dir: %w", err)
	}
	encoded := hex.EncodeToString(key) + "\n"
	if err := os.WriteFile(s.path, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("identity: write key file: %w", err)
	}
	return nil
}

// MemoryKeyStore keeps the key in memory only. Used in tests and for
// throwaway sessions.
type MemoryKeyStore struct {
	key ed25519.PrivateKey
}

// Load implements KeyStore.
func (s *MemoryKeyStore) Load(context.Context) (ed25519.PrivateKey, error) {
	if s.key == nil {
		return nil, shared.ErrNotFound
	}
	return s.key, nil
}

// Store implements KeyStore.
func (s *MemoryKeyStore) Store(_ context.Context, key ed25519.PrivateKey) error {
	s.key = key
	return nil
}
