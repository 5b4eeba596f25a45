package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aviary-ai/aviary/pkg/store"
)

const (
	// KeyPrefix is the human-recognisable tag on every issued key.
	KeyPrefix = "sk_live_"

	// keyRandomBytes gives 192 bits of entropy, 32 URL-safe characters.
	keyRandomBytes = 24

	// ScopeAll is the wildcard scope granting everything.
	ScopeAll = "*"

	// ScopeExecuteWorkflows is required by the API execute endpoint.
	ScopeExecuteWorkflows = "workflows:execute"
)

var (
	ErrInvalidKey = errors.New("invalid API key")
	ErrExpiredKey = errors.New("API key expired")
)

// KeyStore is the slice of the persistence layer the validator needs.
type KeyStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*store.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// GeneratedKey carries the raw key out of issuance. The raw value appears
// in exactly one response and is never persisted.
type GeneratedKey struct {
	Raw     string
	Hash    string
	Display string
}

// GenerateKey mints a new API key: sk_live_ plus 24 bytes of URL-safe
// random base64. Display keeps the first 12 characters for listings.
func GenerateKey() (GeneratedKey, error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedKey{}, fmt.Errorf("failed to generate key material: %w", err)
	}

	raw := KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return GeneratedKey{
		Raw:     raw,
		Hash:    HashKey(raw),
		Display: raw[:12] + "...",
	}, nil
}

// HashKey returns the lowercase SHA-256 hex digest of the full raw key.
// The digest is the storage and lookup key; the hash-table lookup gives a
// constant-time comparison for free.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Validator authenticates presented API keys against the credential store.
type Validator struct {
	keys KeyStore
}

func NewValidator(keys KeyStore) *Validator {
	return &Validator{keys: keys}
}

// Validate looks up the presented key by digest, enforces expiry, and
// records last use best-effort.
func (v *Validator) Validate(ctx context.Context, raw string) (*store.APIKey, error) {
	if raw == "" {
		return nil, ErrInvalidKey
	}

	key, err := v.keys.GetAPIKeyByHash(ctx, HashKey(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiredKey
	}

	if err := v.keys.TouchAPIKey(ctx, key.ID, time.Now().UTC()); err != nil {
		slog.Debug("Failed to update API key last_used_at", "key_id", key.ID, "error", err)
	}

	return key, nil
}

// HasScope reports whether the key grants the required scope, either
// exactly or via the wildcard.
func HasScope(key *store.APIKey, required string) bool {
	for _, s := range key.Scopes {
		if s == required || s == ScopeAll {
			return true
		}
	}
	return false
}
