// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// UserStore persists accounts.
//
// Save inserts or updates. It must enforce username uniqueness atomically and
// return an error wrapping ErrAlreadyExists when another account holds the
// username. Save never un-withdraws: once stored as WITHDRAWN, an account
// keeps that status and its StatusChangedAt whatever copy is saved later.
// Find methods return an error wrapping ErrNotFound when absent.
type UserStore interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)
	Save(ctx context.Context, acct *Account) error
}

// RefreshTokenStore persists at most one refresh token per account.
//
// Issue replaces any existing token for token.AccountID. DeleteByAccount
// succeeds when the account holds no token. Find methods return an error
// wrapping ErrNotFound when absent.
type RefreshTokenStore interface {
	Issue(ctx context.Context, token *RefreshToken) error
	FindByAccount(ctx context.Context, accountID ulid.ULID) (*RefreshToken, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RevokedAccessTokenStore records revoked access token identifiers.
//
// Revoke is idempotent. IsRevoked reports false once an entry has expired.
// PurgeExpired removes expired entries and returns how many were removed;
// stores that expire entries on their own may return 0.
type RevokedAccessTokenStore interface {
	Revoke(ctx context.Context, entry *RevokedAccessToken) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
