// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

// RevokedAccessTokenStore implements account.RevokedAccessTokenStore using
// PostgreSQL. Expired rows linger until PurgeExpired removes them.
type RevokedAccessTokenStore struct {
	db   Querier
	opts options
}

// NewRevokedAccessTokenStore creates a new RevokedAccessTokenStore.
func NewRevokedAccessTokenStore(db Querier, opts ...Option) *RevokedAccessTokenStore {
	return &RevokedAccessTokenStore{db: db, opts: newOptions(opts)}
}

// Revoke records entry. Revoking the same identifier again keeps the later expiry.
func (s *RevokedAccessTokenStore) Revoke(ctx context.Context, entry *account.RevokedAccessToken) error {
	err := s.opts.do(ctx, func(ctx context.Context) error {
		_, execErr := s.db.Exec(ctx, `
			INSERT INTO revoked_access_tokens (token_id, username, expires_at, revoked_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (token_id) DO UPDATE SET
				expires_at = GREATEST(revoked_access_tokens.expires_at, EXCLUDED.expires_at)
		`,
			entry.TokenID,
			entry.Username,
			entry.ExpiresAt,
			entry.RevokedAt,
		)
		return execErr
	})
	if err != nil {
		return oops.Code("ACCOUNT_REVOKE_FAILED").
			With("operation", "insert revocation").
			With("token_id", entry.TokenID).
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether tokenID has an unexpired revocation entry.
func (s *RevokedAccessTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := s.opts.do(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM revoked_access_tokens
				WHERE token_id = $1 AND expires_at > now()
			)`, tokenID).Scan(&revoked)
	})
	if err != nil {
		return false, oops.Code("ACCOUNT_REVOCATION_CHECK_FAILED").
			With("operation", "check revocation").
			With("token_id", tokenID).
			Wrap(err)
	}
	return revoked, nil
}

// PurgeExpired removes entries that expired at or before now.
func (s *RevokedAccessTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := s.opts.do(ctx, func(ctx context.Context) error {
		tag, execErr := s.db.Exec(ctx,
			`DELETE FROM revoked_access_tokens WHERE expires_at <= $1`, now)
		if execErr != nil {
			return execErr
		}
		purged = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, oops.Code("ACCOUNT_REVOCATION_PURGE_FAILED").
			With("operation", "purge expired revocations").
			Wrap(err)
	}
	return purged, nil
}

var _ account.RevokedAccessTokenStore = (*RevokedAccessTokenStore)(nil)
