// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account implements the account lifecycle: registration, login,
// logout, token refresh and withdrawal.
//
// # Domain Types
//
// Account carries the identity and credential hash of a registered user and
// its Status. The only status transition is NORMAL -> WITHDRAWN, performed by
// Account.Withdraw; it cannot be undone.
//
// RefreshToken is the long-lived session credential. Only its SHA-256 hash is
// stored. Each account holds at most one refresh token; issuing a new one
// replaces the previous.
//
// RevokedAccessToken marks an access token identifier as unusable until the
// token would have expired anyway.
//
// # Collaborators
//
// The Service depends on UserStore, RefreshTokenStore and
// RevokedAccessTokenStore for persistence, a PasswordHasher for credentials and
// an AccessTokenIssuer for short-lived access tokens. Implementations live in
// the postgres, redis, memstore and kafka subpackages.
//
// # Errors
//
// Expected failures are returned as oops errors wrapping one of the package
// sentinels (ErrInvalidFormat, ErrPasswordTooShort, ErrAlreadyExists,
// ErrNotFound, ErrWithdrawn, ErrInvalidCredentials, ErrInvalidToken).
// Store failures surface as ErrStorageUnavailable. Use KindOf to classify.
package account
