// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSigningKeyLength is the minimum HMAC key size accepted by NewJWTIssuer.
const MinSigningKeyLength = 32

// AccessToken is a short-lived bearer credential.
type AccessToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	TokenID   string    `json:"token_id"`
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccessTokenIssuer mints and verifies access tokens.
type AccessTokenIssuer interface {
	Issue(acct *Account, now time.Time) (*AccessToken, error)
	Parse(token string, now time.Time) (*AccessClaims, error)
	TTL() time.Duration
}

type accessTokenClaims struct {
	AccountID string `json:"aid"`
	jwt.RegisteredClaims
}

// JWTIssuer issues HS256-signed JWT access tokens.
type JWTIssuer struct {
	issuer string
	key    []byte
	ttl    time.Duration
}

// NewJWTIssuer creates a JWTIssuer. The key must be at least
// MinSigningKeyLength bytes and ttl must be positive.
func NewJWTIssuer(issuer string, key []byte, ttl time.Duration) (*JWTIssuer, error) {
	if issuer == "" {
		return nil, oops.Code("ACCOUNT_ISSUER_INVALID").Errorf("issuer is required")
	}
	if len(key) < MinSigningKeyLength {
		return nil, oops.Code("ACCOUNT_ISSUER_INVALID").
			With("min", MinSigningKeyLength).
			Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if ttl <= 0 {
		return nil, oops.Code("ACCOUNT_ISSUER_INVALID").Errorf("access token ttl must be positive")
	}
	return &JWTIssuer{issuer: issuer, key: key, ttl: ttl}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *JWTIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue mints a token for acct. The token identifier is a fresh ULID.
func (i *JWTIssuer) Issue(acct *Account, now time.Time) (*AccessToken, error) {
	claims := accessTokenClaims{
		AccountID: acct.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   acct.Username,
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return nil, oops.Code("ACCOUNT_TOKEN_SIGN_FAILED").
			With("username", acct.Username).
			Wrap(err)
	}

	return &AccessToken{
		Token:     signed,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (i *JWTIssuer) Parse(token string, now time.Time) (*AccessClaims, error) {
	var claims accessTokenClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, oops.Code("ACCOUNT_TOKEN_PARSE_FAILED").Wrap(err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, oops.Code("ACCOUNT_TOKEN_PARSE_FAILED").Errorf("token is missing jti or sub")
	}

	out := &AccessClaims{
		TokenID:   claims.ID,
		AccountID: claims.AccountID,
		Username:  claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
