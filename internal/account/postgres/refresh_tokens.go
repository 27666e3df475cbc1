// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

const refreshTokenColumns = `id, account_id, token_hash, access_token_id,
	access_expires_at, expires_at, created_at`

// RefreshTokenStore implements account.RefreshTokenStore using PostgreSQL.
// The refresh_tokens table holds at most one row per account.
type RefreshTokenStore struct {
	db   Querier
	opts options
}

// NewRefreshTokenStore creates a new RefreshTokenStore.
func NewRefreshTokenStore(db Querier, opts ...Option) *RefreshTokenStore {
	return &RefreshTokenStore{db: db, opts: newOptions(opts)}
}

// Issue stores token, replacing the account's previous token in one statement.
func (s *RefreshTokenStore) Issue(ctx context.Context, token *account.RefreshToken) error {
	err := s.opts.do(ctx, func(ctx context.Context) error {
		_, execErr := s.db.Exec(ctx, `
			INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (account_id) DO UPDATE SET
				id = EXCLUDED.id,
				token_hash = EXCLUDED.token_hash,
				access_token_id = EXCLUDED.access_token_id,
				access_expires_at = EXCLUDED.access_expires_at,
				expires_at = EXCLUDED.expires_at,
				created_at = EXCLUDED.created_at
		`,
			token.ID.String(),
			token.AccountID.String(),
			token.TokenHash,
			token.AccessTokenID,
			token.AccessExpiresAt,
			token.ExpiresAt,
			token.CreatedAt,
		)
		return execErr
	})
	if err != nil {
		return oops.Code("ACCOUNT_REFRESH_TOKEN_ISSUE_FAILED").
			With("operation", "upsert refresh token").
			With("account_id", token.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// FindByAccount returns the account's current token.
func (s *RefreshTokenStore) FindByAccount(ctx context.Context, accountID ulid.ULID) (*account.RefreshToken, error) {
	token, err := s.findOne(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE account_id = $1`,
		accountID.String())
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_REFRESH_TOKEN_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_REFRESH_TOKEN_GET_FAILED").
			With("operation", "get refresh token by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return token, nil
}

// FindByTokenHash returns the token with the given hash.
func (s *RefreshTokenStore) FindByTokenHash(ctx context.Context, tokenHash string) (*account.RefreshToken, error) {
	token, err := s.findOne(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`,
		tokenHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_REFRESH_TOKEN_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_REFRESH_TOKEN_GET_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return token, nil
}

// DeleteByAccount removes the account's token. Deleting a missing token is not an error.
func (s *RefreshTokenStore) DeleteByAccount(ctx context.Context, accountID ulid.ULID) error {
	err := s.opts.do(ctx, func(ctx context.Context) error {
		_, execErr := s.db.Exec(ctx,
			`DELETE FROM refresh_tokens WHERE account_id = $1`, accountID.String())
		return execErr
	})
	if err != nil {
		return oops.Code("ACCOUNT_REFRESH_TOKEN_DELETE_FAILED").
			With("operation", "delete refresh token").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes tokens that expired at or before now.
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := s.opts.do(ctx, func(ctx context.Context) error {
		tag, execErr := s.db.Exec(ctx,
			`DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
		if execErr != nil {
			return execErr
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, oops.Code("ACCOUNT_REFRESH_TOKEN_DELETE_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return deleted, nil
}

func (s *RefreshTokenStore) findOne(ctx context.Context, query string, arg any) (*account.RefreshToken, error) {
	var token *account.RefreshToken
	err := s.opts.do(ctx, func(ctx context.Context) error {
		var scanErr error
		token, scanErr = scanRefreshToken(s.db.QueryRow(ctx, query, arg))
		return scanErr
	})
	return token, err
}

func scanRefreshToken(row pgx.Row) (*account.RefreshToken, error) {
	var (
		token        account.RefreshToken
		idStr        string
		accountIDStr string
	)
	err := row.Scan(
		&idStr,
		&accountIDStr,
		&token.TokenHash,
		&token.AccessTokenID,
		&token.AccessExpiresAt,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		//nolint:wrapcheck // pgx.ErrNoRows must reach callers unwrapped
		return nil, err
	}

	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ROW").With("id", idStr).Wrap(err)
	}
	if token.AccountID, err = ulid.Parse(accountIDStr); err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ROW").With("account_id", accountIDStr).Wrap(err)
	}
	return &token, nil
}

var _ account.RefreshTokenStore = (*RefreshTokenStore)(nil)
