package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddress(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id.Address, "0x"))
	assert.Len(t, id.Address, 2+40) // 0x + 20 hex bytes

	// Address is deterministic for a given key.
	assert.Equal(t, id.Address, DeriveAddress(id.PublicKey))

	other, err := NewIdentity()
	require.NoError(t, err)
	assert.NotEqual(t, id.Address, other.Address)
}

func TestIdentityFromKey_RoundTrip(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)

	restored, err := IdentityFromKey(id.PrivateKey())
	require.NoError(t, err)
	assert.Equal(t, id.Address, restored.Address)
	assert.False(t, restored.Anonymous)
}

func TestIdentityFromKey_BadKey(t *testing.T) {
	_, err := IdentityFromKey(make(ed25519.PrivateKey, 7))
	assert.Error(t, err)
}

func TestGetAuthToken_SignedAndVerifiable(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	auth := NewAuthenticatorWithIdentity(id, nil)

	token, err := auth.GetAuthToken(context.Background())
	require.NoError(t, err)

	parts := strings.SplitN(token, ".", 2)
	require.Len(t, parts, 2)

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	var claims tokenClaims
	require.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, id.Address, claims.Wallet)
	assert.Greater(t, claims.ExpiresAt, claims.IssuedAt)

	signature, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(id.PublicKey, []byte(parts[0]), signature))
}

func TestGetAuthToken_CachedUntilExpiry(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	auth := NewAuthenticatorWithIdentity(id, nil)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	first, err := auth.GetAuthToken(context.Background())
	require.NoError(t, err)

	// Within the validity window the same token is returned.
	now = now.Add(5 * time.Minute)
	second, err := auth.GetAuthToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Close to expiry a new token is minted.
	now = now.Add(10 * time.Minute)
	third, err := auth.GetAuthToken(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestGetAuthToken_InvalidateForcesMint(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	auth := NewAuthenticatorWithIdentity(id, nil)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	first, err := auth.GetAuthToken(context.Background())
	require.NoError(t, err)

	auth.Invalidate()
	now = now.Add(time.Second)
	second, err := auth.GetAuthToken(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestNewAuthenticator_GeneratesAndPersistsAnonymousIdentity(t *testing.T) {
	ctx := context.Background()
	keys := &MemoryKeyStore{}

	first, err := NewAuthenticator(ctx, keys, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.WalletAddress())

	// A second start reuses the stored key.
	second, err := NewAuthenticator(ctx, keys, nil)
	require.NoError(t, err)
	assert.Equal(t, first.WalletAddress(), second.WalletAddress())
}

func TestFileKeyStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys", "wallet.key")
	store := NewFileKeyStore(path)

	_, err := store.Load(ctx)
	assert.Error(t, err)

	id, err := NewIdentity()
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, id.PrivateKey()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.PrivateKey(), loaded)
}
