// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/pkg/errutil"
)

var refreshRowColumns = []string{
	"id", "account_id", "token_hash", "access_token_id",
	"access_expires_at", "expires_at", "created_at",
}

func sampleRefreshToken() *account.RefreshToken {
	return &account.RefreshToken{
		ID:              ulid.Make(),
		AccountID:       ulid.Make(),
		TokenHash:       account.HashRefreshToken("opaque"),
		AccessTokenID:   ulid.Make().String(),
		AccessExpiresAt: epoch.Add(15 * time.Minute),
		ExpiresAt:       epoch.Add(7 * 24 * time.Hour),
		CreatedAt:       epoch,
	}
}

func refreshRow(token *account.RefreshToken) *pgxmock.Rows {
	return pgxmock.NewRows(refreshRowColumns).AddRow(
		token.ID.String(), token.AccountID.String(), token.TokenHash, token.AccessTokenID,
		token.AccessExpiresAt, token.ExpiresAt, token.CreatedAt,
	)
}

func TestRefreshTokenStore_Issue(t *testing.T) {
	token := sampleRefreshToken()
	mock := newMock(t)
	mock.ExpectExec(`(?s)INSERT INTO refresh_tokens .+\s+ON CONFLICT \(account_id\) DO UPDATE`).
		WithArgs(token.ID.String(), token.AccountID.String(), token.TokenHash, token.AccessTokenID,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewRefreshTokenStore(mock).Issue(context.Background(), token))
}

func TestRefreshTokenStore_IssueFailure(t *testing.T) {
	token := sampleRefreshToken()
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	err := NewRefreshTokenStore(mock, fastRetry).Issue(context.Background(), token)
	errutil.AssertErrorCode(t, err, "ACCOUNT_REFRESH_TOKEN_ISSUE_FAILED")
	errutil.AssertErrorContext(t, err, "account_id", token.AccountID.String())
}

func TestRefreshTokenStore_FindByAccount(t *testing.T) {
	want := sampleRefreshToken()
	mock := newMock(t)
	mock.ExpectQuery(`FROM refresh_tokens WHERE account_id = \$1`).
		WithArgs(want.AccountID.String()).
		WillReturnRows(refreshRow(want))

	got, err := NewRefreshTokenStore(mock).FindByAccount(context.Background(), want.AccountID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRefreshTokenStore_FindByTokenHash(t *testing.T) {
	want := sampleRefreshToken()

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash = \$1`).
			WithArgs(want.TokenHash).
			WillReturnRows(refreshRow(want))

		got, err := NewRefreshTokenStore(mock).FindByTokenHash(context.Background(), want.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash = \$1`).
			WithArgs(want.TokenHash).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewRefreshTokenStore(mock).FindByTokenHash(context.Background(), want.TokenHash)
		errutil.AssertErrorIs(t, err, account.ErrNotFound, "ACCOUNT_REFRESH_TOKEN_NOT_FOUND")
	})

	t.Run("corrupt account id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash = \$1`).
			WithArgs(want.TokenHash).
			WillReturnRows(pgxmock.NewRows(refreshRowColumns).AddRow(
				want.ID.String(), "not-a-ulid", want.TokenHash, want.AccessTokenID,
				want.AccessExpiresAt, want.ExpiresAt, want.CreatedAt))

		_, err := NewRefreshTokenStore(mock).FindByTokenHash(context.Background(), want.TokenHash)
		errutil.AssertErrorCode(t, err, "ACCOUNT_CORRUPT_ROW")
	})
}

func TestRefreshTokenStore_DeleteByAccount(t *testing.T) {
	accountID := ulid.Make()
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE account_id = \$1`).
		WithArgs(accountID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, NewRefreshTokenStore(mock).DeleteByAccount(context.Background(), accountID))
}

func TestRefreshTokenStore_DeleteExpired(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= \$1`).
		WithArgs(epoch).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := NewRefreshTokenStore(mock).DeleteExpired(context.Background(), epoch)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
