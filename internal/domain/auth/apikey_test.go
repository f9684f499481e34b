package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockKeys struct {
	keys map[string]*APIKeyInfo
	err  error
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.keys[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return k, nil
}

var testPepper = []byte("pepper")

func newKeys(scopes ...string) *mockKeys {
	h := Hash(testPepper, "staff-secret")
	return &mockKeys{keys: map[string]*APIKeyInfo{
		h: {ID: "k1", KeyHash: h, Name: "front desk", Scopes: scopes},
	}}
}

func TestHash(t *testing.T) {
	h := Hash(testPepper, "staff-secret")
	assert.Len(t, h, 64)
	assert.Equal(t, h, Hash(testPepper, "staff-secret"))
	assert.NotEqual(t, h, Hash([]byte("other"), "staff-secret"))
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		keys    *mockKeys
		raw     string
		scope   string
		wantErr error
	}{
		{name: "granted", keys: newKeys(ScopeOrdersWrite), raw: "staff-secret", scope: ScopeOrdersWrite},
		{name: "wildcard", keys: newKeys("*"), raw: "staff-secret", scope: ScopePaymentsRead},
		{name: "empty key", keys: newKeys("*"), raw: "", scope: ScopeOrdersWrite, wantErr: ErrUnauthorized},
		{name: "unknown key", keys: newKeys("*"), raw: "guess", scope: ScopeOrdersWrite, wantErr: ErrUnauthorized},
		{name: "missing scope", keys: newKeys(ScopePaymentsRead), raw: "staff-secret", scope: ScopeOrdersWrite, wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthenticator(tt.keys, testPepper)
			info, err := a.Authenticate(context.Background(), tt.raw, tt.scope)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "k1", info.ID)
		})
	}
}

func TestAuthenticate_StoredHashMismatch(t *testing.T) {
	h := Hash(testPepper, "staff-secret")
	keys := &mockKeys{keys: map[string]*APIKeyInfo{
		h: {ID: "k1", KeyHash: Hash(testPepper, "other"), Scopes: []string{"*"}},
	}}

	_, err := NewAuthenticator(keys, testPepper).Authenticate(context.Background(), "staff-secret", ScopeOrdersWrite)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_RepositoryFailure(t *testing.T) {
	keys := &mockKeys{err: errors.New("connection refused")}

	_, err := NewAuthenticator(keys, testPepper).Authenticate(context.Background(), "staff-secret", ScopeOrdersWrite)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
