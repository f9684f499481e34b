// Package auth authenticates staff API keys.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// Sentinel errors for key authentication.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("api key not found")
)

// Scopes granted to staff keys.
const (
	ScopeOrdersWrite  = "orders:write"
	ScopePaymentsRead = "payments:read"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Allows reports whether the key carries the scope. The "*" scope grants
// everything.
func (k *APIKeyInfo) Allows(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, "*")
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	// FindByHash returns the active key with the hash or ErrNotFound.
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Authenticator checks raw API keys against stored HMAC-SHA256 hashes.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator hashing keys with the pepper.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Hash returns the hex HMAC-SHA256 of the raw key, as stored in api_keys.
func Hash(pepper []byte, rawKey string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves the raw key and checks it grants scope.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey, scope string) (*APIKeyInfo, error) {
	if rawKey == "" {
		return nil, ErrUnauthorized
	}
	hash := Hash(a.pepper, rawKey)

	info, err := a.keys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	// The stored row must match what was computed, not merely be returned.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	computed, _ := hex.DecodeString(hash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, ErrUnauthorized
	}

	if !info.Allows(scope) {
		return nil, ErrForbidden
	}
	return info, nil
}
