// Package auth provides bearer-token caller resolution for the scandash
// API. Tokens are opaque secrets issued out of band; the server stores a
// bcrypt hash for verification plus a SHA-256 lookup digest so resolution
// costs one hash compare instead of one per configured token.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/scandash/scandash/internal/errors"
)

const (
	// TokenLength is the length of the random part of a token.
	TokenLength = 32
	// TokenPrefix is the standard prefix for all issued tokens.
	TokenPrefix = "sdt"

	// BcryptCost balances verification cost against brute-force
	// resistance for stored token hashes.
	BcryptCost = 12
)

// Caller identifies an authenticated API caller.
type Caller struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email"`
}

// Resolver resolves a bearer token to a caller identity.
type Resolver interface {
	// ResolveCaller returns the caller for a valid token, or an
	// UNAUTHORIZED error. It never returns (nil, nil).
	ResolveCaller(ctx context.Context, token string) (*Caller, error)
}

// TokenEntry is one configured token: the caller it identifies, the
// SHA-256 lookup digest of the token, and its bcrypt hash.
type TokenEntry struct {
	SubjectID string `yaml:"subject_id" json:"subject_id"`
	Email     string `yaml:"email" json:"email"`
	Lookup    string `yaml:"lookup" json:"lookup"`
	Hash      string `yaml:"hash" json:"hash"`
}

// StaticResolver resolves callers against a fixed set of token entries,
// typically loaded from configuration.
type StaticResolver struct {
	byLookup map[string]TokenEntry
}

var _ Resolver = (*StaticResolver)(nil)

// NewStaticResolver creates a resolver from configured token entries.
func NewStaticResolver(entries []TokenEntry) *StaticResolver {
	byLookup := make(map[string]TokenEntry, len(entries))
	for _, entry := range entries {
		byLookup[strings.ToLower(entry.Lookup)] = entry
	}
	return &StaticResolver{byLookup: byLookup}
}

// ResolveCaller implements Resolver.
func (r *StaticResolver) ResolveCaller(_ context.Context, token string) (*Caller, error) {
	if token == "" {
		return nil, errors.ErrUnauthorized("missing bearer token")
	}

	entry, ok := r.byLookup[LookupDigest(token)]
	if !ok {
		return nil, errors.ErrUnauthorized("unknown token")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(entry.Hash), []byte(token)); err != nil {
		return nil, errors.ErrUnauthorized("invalid token")
	}

	return &Caller{SubjectID: entry.SubjectID, Email: entry.Email}, nil
}

// LookupDigest returns the hex SHA-256 digest used to index a token.
func LookupDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateToken creates a new random bearer token and its storable entry.
// The raw token is returned once and never stored.
func GenerateToken(subjectID, email string) (string, *TokenEntry, error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate random token: %w", err)
	}

	randomPart := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes))
	if len(randomPart) > TokenLength {
		randomPart = randomPart[:TokenLength]
	}
	token := fmt.Sprintf("%s_%s", TokenPrefix, randomPart)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash token: %w", err)
	}

	return token, &TokenEntry{
		SubjectID: subjectID,
		Email:     email,
		Lookup:    LookupDigest(token),
		Hash:      string(hash),
	}, nil
}

// ParseBearer extracts the token from an Authorization header value.
// Returns the empty string when the header is not a bearer credential.
func ParseBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
