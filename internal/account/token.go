// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshTokenBytes is the number of random bytes in a refresh token.
const RefreshTokenBytes = 32

// RefreshToken is the stored form of an account's refresh token. The
// plaintext value is returned to the client once and never persisted.
type RefreshToken struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string

	// AccessTokenID and AccessExpiresAt identify the access token issued
	// together with this refresh token, so it can be revoked when the
	// session ends.
	AccessTokenID   string
	AccessExpiresAt time.Time

	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the token has expired at now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// GenerateRefreshToken creates a cryptographically random refresh token.
// Returns the plaintext token (for the client) and its hash (for storage).
func GenerateRefreshToken() (token, hash string, err error) {
	tokenBytes := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("ACCOUNT_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the SHA-256 hash of a refresh token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyRefreshToken reports whether token hashes to hash, in constant time.
func VerifyRefreshToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashRefreshToken(token)), []byte(hash)) == 1
}

// RevokedAccessToken marks an access token identifier as rejected until
// ExpiresAt, after which the entry may be discarded.
type RevokedAccessToken struct {
	TokenID   string
	Username  string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// TTL returns how long the entry must be retained after now.
// It is never negative.
func (e *RevokedAccessToken) TTL(now time.Time) time.Duration {
	if ttl := e.ExpiresAt.Sub(now); ttl > 0 {
		return ttl
	}
	return 0
}
