// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore provides in-process implementations of the account stores.
// They are safe for concurrent use and intended for development and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

// UserStore implements account.UserStore in memory.
type UserStore struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]account.Account
	byUsername map[string]ulid.ULID
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:       make(map[ulid.ULID]account.Account),
		byUsername: make(map[string]ulid.ULID),
	}
}

// ExistsByUsername reports whether any account, of any status, holds username.
func (s *UserStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUsername[username]
	return ok, nil
}

// FindByUsername returns a copy of the account holding username.
func (s *UserStore) FindByUsername(_ context.Context, username string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, oops.Code("ACCOUNT_USER_NOT_FOUND").With("username", username).Wrap(account.ErrNotFound)
	}
	acct := s.byID[id]
	return &acct, nil
}

// FindByID returns a copy of the account with id.
func (s *UserStore) FindByID(_ context.Context, id ulid.ULID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.byID[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_USER_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return &acct, nil
}

// Save inserts or updates acct. The username of an existing account is never
// changed, and neither is the status of a withdrawn one.
func (s *UserStore) Save(_ context.Context, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[acct.ID]; ok {
		updated := *acct
		updated.Username = existing.Username
		if existing.IsWithdrawn() {
			updated.Status = existing.Status
			updated.StatusChangedAt = existing.StatusChangedAt
		}
		s.byID[acct.ID] = updated
		return nil
	}

	if _, taken := s.byUsername[acct.Username]; taken {
		return oops.Code("ACCOUNT_USER_DUPLICATE").With("username", acct.Username).Wrap(account.ErrAlreadyExists)
	}
	s.byID[acct.ID] = *acct
	s.byUsername[acct.Username] = acct.ID
	return nil
}

// RefreshTokenStore implements account.RefreshTokenStore in memory.
type RefreshTokenStore struct {
	mu        sync.RWMutex
	byAccount map[ulid.ULID]account.RefreshToken
}

// NewRefreshTokenStore creates an empty RefreshTokenStore.
func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{byAccount: make(map[ulid.ULID]account.RefreshToken)}
}

// Issue stores token, replacing any existing token for the same account.
func (s *RefreshTokenStore) Issue(_ context.Context, token *account.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAccount[token.AccountID] = *token
	return nil
}

// FindByAccount returns the account's current token.
func (s *RefreshTokenStore) FindByAccount(_ context.Context, accountID ulid.ULID) (*account.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.byAccount[accountID]
	if !ok {
		return nil, oops.Code("ACCOUNT_REFRESH_TOKEN_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(account.ErrNotFound)
	}
	return &token, nil
}

// FindByTokenHash returns the token whose hash matches.
func (s *RefreshTokenStore) FindByTokenHash(_ context.Context, tokenHash string) (*account.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, token := range s.byAccount {
		if token.TokenHash == tokenHash {
			return &token, nil
		}
	}
	return nil, oops.Code("ACCOUNT_REFRESH_TOKEN_NOT_FOUND").Wrap(account.ErrNotFound)
}

// DeleteByAccount removes the account's token if present.
func (s *RefreshTokenStore) DeleteByAccount(_ context.Context, accountID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAccount, accountID)
	return nil
}

// DeleteExpired removes tokens expired at now.
func (s *RefreshTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, token := range s.byAccount {
		if token.IsExpired(now) {
			delete(s.byAccount, id)
			n++
		}
	}
	return n, nil
}

// RevokedAccessTokenStore implements account.RevokedAccessTokenStore in memory.
type RevokedAccessTokenStore struct {
	mu      sync.RWMutex
	entries map[string]account.RevokedAccessToken
	now     func() time.Time
}

// NewRevokedAccessTokenStore creates an empty store. now is used by IsRevoked
// to ignore expired entries; nil means time.Now.
func NewRevokedAccessTokenStore(now func() time.Time) *RevokedAccessTokenStore {
	if now == nil {
		now = time.Now
	}
	return &RevokedAccessTokenStore{
		entries: make(map[string]account.RevokedAccessToken),
		now:     now,
	}
}

// Revoke records entry. Revoking an identifier again keeps the later expiry.
func (s *RevokedAccessTokenStore) Revoke(_ context.Context, entry *account.RevokedAccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[entry.TokenID]; ok && existing.ExpiresAt.After(entry.ExpiresAt) {
		return nil
	}
	s.entries[entry.TokenID] = *entry
	return nil
}

// IsRevoked reports whether tokenID has an unexpired entry.
func (s *RevokedAccessTokenStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[tokenID]
	return ok && entry.ExpiresAt.After(s.now()), nil
}

// PurgeExpired removes entries expired at now.
func (s *RevokedAccessTokenStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, entry := range s.entries {
		if !entry.ExpiresAt.After(now) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (s *RevokedAccessTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var (
	_ account.UserStore               = (*UserStore)(nil)
	_ account.RefreshTokenStore       = (*RefreshTokenStore)(nil)
	_ account.RevokedAccessTokenStore = (*RevokedAccessTokenStore)(nil)
)
