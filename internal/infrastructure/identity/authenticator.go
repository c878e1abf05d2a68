// Package identity manages the local wallet identity: the signing keypair,
// the wallet address derived from it, and the short-lived auth tokens
// presented to the remote ledger.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WALLET IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Identity is a wallet keypair with its derived address.
type Identity struct {
	// Address is the hex wallet address, "0x" + last 20 bytes of the
	// Keccak-256 hash of the public key.
	Address string

	PublicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey

	// Anonymous marks a generated identity not yet linked to an account.
	Anonymous bool
}

// KeyStore persists the keypair between sessions.
type KeyStore interface {
	// Load returns the stored keypair or shared.ErrNotFound.
	Load(ctx context.Context) (ed25519.PrivateKey, error)

	// Store saves the keypair.
	Store(ctx context.Context, key ed25519.PrivateKey) error
}

// NewIdentity generates a fresh anonymous wallet identity.
func NewIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &Identity{
		Address:    DeriveAddress(pub),
		PublicKey:  pub,
		privateKey: priv,
		Anonymous:  true,
	}, nil
}

// IdentityFromKey rebuilds an identity from a stored private key.
func IdentityFromKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("identity: %w: bad private key size %d", shared.ErrValidation, len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{
		Address:    DeriveAddress(pub),
		PublicKey:  pub,
		privateKey: priv,
	}, nil
}

// DeriveAddress computes the wallet address from a public key using
// Keccak-256, taking the last 20 bytes of the digest.
func DeriveAddress(pub ed25519.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	digest := h.Sum(nil)
	return "0x" + hex.EncodeToString(digest[len(digest)-20:])
}

// Sign signs a message with the wallet key.
func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.privateKey, message)
}

// PrivateKey exposes the raw key for persistence.
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.privateKey
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATOR
// ══════════════════════════════════════════════════════════════════════════════

// tokenTTL is how long a minted auth token stays valid on the ledger.
const tokenTTL = 15 * time.Minute

// tokenClaims is the signed payload of an auth token.
type tokenClaims struct {
	Wallet    string `json:"wallet"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Authenticator mints and caches wallet-signed auth tokens. A token is
// base64url(claims) + "." + base64url(signature); the ledger verifies it
// against the wallet's registered public key.
type Authenticator struct {
	identity *Identity
	logger   *slog.Logger

	mu      sync.Mutex
	token   string
	expires time.Time

	now func() time.Time
}

// NewAuthenticator loads the identity from the key store, generating and
// persisting an anonymous one on first run.
func NewAuthenticator(ctx context.Context, keys KeyStore, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var identity *Identity
	priv, err := keys.Load(ctx)
	switch {
	case err == nil:
		identity, err = IdentityFromKey(priv)
		if err != nil {
			return nil, err
		}
	case shared.IsNotFound(err):
		identity, err = NewIdentity()
		if err != nil {
			return nil, err
		}
		if err := keys.Store(ctx, identity.privateKey); err != nil {
			return nil, fmt.Errorf("identity: persist key: %w", err)
		}
		logger.Info("generated anonymous wallet identity", "address", identity.Address)
	default:
		return nil, fmt.Errorf("identity: load key: %w", err)
	}

	return &Authenticator{
		identity: identity,
		logger:   logger.With("component", "authenticator"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewAuthenticatorWithIdentity wraps an existing identity. Used by tests
// and by account linking.
func NewAuthenticatorWithIdentity(identity *Identity, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		identity: identity,
		logger:   logger.With("component", "authenticator"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WalletAddress returns the wallet address of the current identity.
func (a *Authenticator) WalletAddress() string {
	return a.identity.Address
}

// GetAuthToken returns a valid token, minting a new one when the cached
// token is expired or missing.
func (a *Authenticator) GetAuthToken(_ context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Refresh one minute early so an in-flight request never carries a
	// token that expires mid-settlement.
	if a.token != "" && a.now().Add(time.Minute).Before(a.expires) {
		return a.token, nil
	}

	now := a.now()
	claims := tokenClaims{
		Wallet:    a.identity.Address,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(tokenTTL).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("identity: marshal claims: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	signature := a.identity.Sign([]byte(encoded))
	token := encoded + "." + base64.RawURLEncoding.EncodeToString(signature)

	a.token = token
	a.expires = now.Add(tokenTTL)
	return token, nil
}

// Invalidate drops the cached token, forcing a mint on the next call.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expires = time.Time{}
}
