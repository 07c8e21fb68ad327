package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scandash/scandash/internal/errors"
)

func TestGenerateToken(t *testing.T) {
	token, entry, err := GenerateToken("alice", "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.True(t, strings.HasPrefix(token, TokenPrefix+"_"))
	assert.Equal(t, "alice", entry.SubjectID)
	assert.Equal(t, "alice@example.com", entry.Email)
	assert.Equal(t, LookupDigest(token), entry.Lookup)
	assert.NotContains(t, entry.Hash, token, "hash must not embed the raw token")
}

func TestGenerateTokenUnique(t *testing.T) {
	first, _, err := GenerateToken("a", "")
	require.NoError(t, err)
	second, _, err := GenerateToken("a", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestStaticResolver(t *testing.T) {
	token, entry, err := GenerateToken("bob", "bob@example.com")
	require.NoError(t, err)

	resolver := NewStaticResolver([]TokenEntry{*entry})

	t.Run("valid token resolves caller", func(t *testing.T) {
		caller, err := resolver.ResolveCaller(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "bob", caller.SubjectID)
		assert.Equal(t, "bob@example.com", caller.Email)
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		caller, err := resolver.ResolveCaller(context.Background(), "sdt_notarealtoken")
		assert.Nil(t, caller)
		require.Error(t, err)
		assert.Equal(t, errors.CodeUnauthorized, errors.GetCode(err))
	})

	t.Run("empty token is rejected", func(t *testing.T) {
		caller, err := resolver.ResolveCaller(context.Background(), "")
		assert.Nil(t, caller)
		require.Error(t, err)
		assert.Equal(t, errors.CodeUnauthorized, errors.GetCode(err))
	})

	t.Run("tampered token fails the hash compare", func(t *testing.T) {
		// Same lookup digest cannot be forged, but a corrupted entry
		// with a mismatched hash must still fail closed.
		bad := *entry
		bad.Hash = "$2a$12$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"
		badResolver := NewStaticResolver([]TokenEntry{bad})

		caller, err := badResolver.ResolveCaller(context.Background(), token)
		assert.Nil(t, caller)
		require.Error(t, err)
	})
}

func TestParseBearer(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"standard bearer", "Bearer sdt_abc123", "sdt_abc123"},
		{"case insensitive scheme", "bearer sdt_abc123", "sdt_abc123"},
		{"trailing whitespace", "Bearer sdt_abc123  ", "sdt_abc123"},
		{"empty header", "", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ""},
		{"scheme only", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseBearer(tt.header))
		})
	}
}

func TestLookupDigest(t *testing.T) {
	digest := LookupDigest("sdt_sample")
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, LookupDigest("sdt_sample"), "digest must be deterministic")
	assert.NotEqual(t, digest, LookupDigest("sdt_other"))
}
