// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis implements account.RevokedAccessTokenStore on Redis. Each
// revocation is a key whose TTL matches the remaining lifetime of the access
// token, so Redis discards entries on its own.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

// DefaultKeyPrefix namespaces revocation keys.
const DefaultKeyPrefix = "accounts:revoked:"

// revokeScript sets the entry unless an existing key already outlives the
// requested TTL, keeping the later expiry.
const revokeScript = `
local current = redis.call('PTTL', KEYS[1])
local want = tonumber(ARGV[2])
if current == -1 or current >= want then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', want)
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// RevokedAccessTokenStore implements account.RevokedAccessTokenStore using Redis.
type RevokedAccessTokenStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option configures the store.
type Option func(*RevokedAccessTokenStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *RevokedAccessTokenStore) {
		s.prefix = prefix
	}
}

// WithClock overrides the time source used to compute TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *RevokedAccessTokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRevokedAccessTokenStore creates a store over client.
func NewRevokedAccessTokenStore(client redis.UniversalClient, opts ...Option) *RevokedAccessTokenStore {
	s := &RevokedAccessTokenStore{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RevokedAccessTokenStore) key(tokenID string) string {
	return s.prefix + tokenID
}

// Revoke stores the entry with a TTL equal to its remaining lifetime.
// Entries that have already expired are not stored.
func (s *RevokedAccessTokenStore) Revoke(ctx context.Context, entry *account.RevokedAccessToken) error {
	ttl := entry.TTL(s.now())
	if ttl <= 0 {
		return nil
	}
	ms := ttl.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	if err := revokeLua.Run(ctx, s.client, []string{s.key(entry.TokenID)}, entry.Username, ms).Err(); err != nil {
		return oops.Code("ACCOUNT_REVOKE_FAILED").
			With("operation", "set revocation key").
			With("token_id", entry.TokenID).
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether the revocation key for tokenID exists.
func (s *RevokedAccessTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, oops.Code("ACCOUNT_REVOCATION_CHECK_FAILED").
			With("operation", "check revocation key").
			With("token_id", tokenID).
			Wrap(err)
	}
	return n > 0, nil
}

// PurgeExpired is a no-op: Redis expires keys itself.
func (s *RevokedAccessTokenStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var _ account.RevokedAccessTokenStore = (*RevokedAccessTokenStore)(nil)
