// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of an account.
type Status string

// Account statuses. WITHDRAWN is terminal.
const (
	StatusNormal    Status = "NORMAL"
	StatusWithdrawn Status = "WITHDRAWN"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusNormal || s == StatusWithdrawn
}

func (s Status) String() string {
	return string(s)
}

// Account is a registered user identity.
// Username never changes after creation. Accounts are never hard-deleted.
type Account struct {
	ID              ulid.ULID
	Username        string
	PasswordHash    string
	Name            string
	Email           string
	Bio             string
	Status          Status
	StatusChangedAt time.Time
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// IsWithdrawn reports whether the account has been withdrawn.
func (a *Account) IsWithdrawn() bool {
	return a.Status == StatusWithdrawn
}

// Withdraw moves the account to WITHDRAWN. It fails with ErrWithdrawn if the
// account is already withdrawn and leaves it untouched.
func (a *Account) Withdraw(now time.Time) error {
	if a.IsWithdrawn() {
		return withdrawn(a.Username)
	}
	a.Status = StatusWithdrawn
	a.StatusChangedAt = now
	a.ModifiedAt = now
	return nil
}

// Profile returns the externally visible projection of the account.
func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID.String(),
		Username:  a.Username,
		Name:      a.Name,
		Email:     a.Email,
		Bio:       a.Bio,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
	}
}

// Profile is the public view of an Account. It never carries the password hash.
// RefreshToken is empty until the account holds a session.
type Profile struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	Status       Status    `json:"status_code"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is the result of a successful login or refresh.
type Session struct {
	Account          *Account
	AccessToken      *AccessToken
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Profile returns the account projection with the session's refresh token.
func (s *Session) Profile() Profile {
	p := s.Account.Profile()
	p.RefreshToken = s.RefreshToken
	return p
}
