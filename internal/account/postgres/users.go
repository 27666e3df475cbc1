// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

const accountColumns = `id, username, password_hash, name, email, bio,
	status, status_changed_at, created_at, modified_at`

// UserStore implements account.UserStore using PostgreSQL.
type UserStore struct {
	db   Querier
	opts options
}

// NewUserStore creates a new UserStore.
func NewUserStore(db Querier, opts ...Option) *UserStore {
	return &UserStore{db: db, opts: newOptions(opts)}
}

// ExistsByUsername reports whether any account holds username, regardless of status.
func (s *UserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.opts.do(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`,
			username).Scan(&exists)
	})
	if err != nil {
		return false, oops.Code("ACCOUNT_USER_EXISTS_FAILED").
			With("operation", "check username").
			With("username", username).
			Wrap(err)
	}
	return exists, nil
}

// FindByUsername retrieves an account by its exact username.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	var acct *account.Account
	err := s.opts.do(ctx, func(ctx context.Context) error {
		var scanErr error
		acct, scanErr = scanAccount(s.db.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_USER_NOT_FOUND").
			With("username", username).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_USER_GET_FAILED").
			With("operation", "get account by username").
			With("username", username).
			Wrap(err)
	}
	return acct, nil
}

// FindByID retrieves an account by ID.
func (s *UserStore) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	var acct *account.Account
	err := s.opts.do(ctx, func(ctx context.Context) error {
		var scanErr error
		acct, scanErr = scanAccount(s.db.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String()))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_USER_GET_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return acct, nil
}

// Save inserts acct or updates the existing row with the same ID.
// The username is never updated and a WITHDRAWN row never returns to NORMAL.
// A username held by another account yields account.ErrAlreadyExists.
func (s *UserStore) Save(ctx context.Context, acct *account.Account) error {
	err := s.opts.do(ctx, func(ctx context.Context) error {
		_, execErr := s.db.Exec(ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				password_hash = EXCLUDED.password_hash,
				name = EXCLUDED.name,
				email = EXCLUDED.email,
				bio = EXCLUDED.bio,
				status = CASE WHEN accounts.status = 'WITHDRAWN'
					THEN accounts.status ELSE EXCLUDED.status END,
				status_changed_at = CASE WHEN accounts.status = 'WITHDRAWN'
					THEN accounts.status_changed_at ELSE EXCLUDED.status_changed_at END,
				modified_at = EXCLUDED.modified_at
		`,
			acct.ID.String(),
			acct.Username,
			acct.PasswordHash,
			acct.Name,
			nullableString(acct.Email),
			acct.Bio,
			string(acct.Status),
			acct.StatusChangedAt,
			acct.CreatedAt,
			acct.ModifiedAt,
		)
		return execErr
	})
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_USER_DUPLICATE").
			With("username", acct.Username).
			Wrap(account.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("ACCOUNT_USER_SAVE_FAILED").
			With("operation", "upsert account").
			With("username", acct.Username).
			Wrap(err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		acct   account.Account
		idStr  string
		email  *string
		status string
	)
	err := row.Scan(
		&idStr,
		&acct.Username,
		&acct.PasswordHash,
		&acct.Name,
		&email,
		&acct.Bio,
		&status,
		&acct.StatusChangedAt,
		&acct.CreatedAt,
		&acct.ModifiedAt,
	)
	if err != nil {
		//nolint:wrapcheck // pgx.ErrNoRows must reach callers unwrapped
		return nil, err
	}

	acct.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ROW").With("id", idStr).Wrap(err)
	}
	acct.Status = account.Status(status)
	if !acct.Status.Valid() {
		return nil, oops.Code("ACCOUNT_CORRUPT_ROW").With("id", idStr).Errorf("unknown status %q", status)
	}
	acct.Email = derefString(email)
	return &acct, nil
}

var _ account.UserStore = (*UserStore)(nil)
