// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors. Stores return ErrNotFound and ErrAlreadyExists; the
// Service returns all of them wrapped in oops errors carrying a code.
var (
	ErrInvalidFormat      = errors.New("invalid format")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrWithdrawn          = errors.New("account withdrawn")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Error codes attached to errors returned by the Service.
const (
	CodeInvalidFormat      = "ACCOUNT_INVALID_FORMAT"
	CodePasswordTooShort   = "ACCOUNT_PASSWORD_TOO_SHORT"
	CodeAlreadyExists      = "ACCOUNT_ALREADY_EXISTS"
	CodeNotFound           = "ACCOUNT_NOT_FOUND"
	CodeWithdrawn          = "ACCOUNT_WITHDRAWN"
	CodeInvalidCredentials = "ACCOUNT_INVALID_CREDENTIALS"
	CodeInvalidToken       = "ACCOUNT_INVALID_TOKEN"
	CodeStorageUnavailable = "ACCOUNT_STORAGE_UNAVAILABLE"
)

// Kind classifies an error returned by the Service.
type Kind string

// Error kinds.
const (
	KindNone               Kind = ""
	KindInvalidFormat      Kind = "invalid_format"
	KindPasswordTooShort   Kind = "password_too_short"
	KindAlreadyExists      Kind = "already_exists"
	KindNotFound           Kind = "not_found"
	KindWithdrawn          Kind = "withdrawn"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidToken       Kind = "invalid_token"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindInternal           Kind = "internal"
)

var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindInvalidFormat, ErrInvalidFormat},
	{KindPasswordTooShort, ErrPasswordTooShort},
	{KindAlreadyExists, ErrAlreadyExists},
	{KindNotFound, ErrNotFound},
	{KindWithdrawn, ErrWithdrawn},
	{KindInvalidCredentials, ErrInvalidCredentials},
	{KindInvalidToken, ErrInvalidToken},
	{KindStorageUnavailable, ErrStorageUnavailable},
}

// KindOf returns the kind of err. A nil error has KindNone; errors that wrap
// none of the package sentinels are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindInternal
}

// Retryable reports whether the caller may retry the operation that produced
// err. Only storage failures are retryable.
func (k Kind) Retryable() bool {
	return k == KindStorageUnavailable
}

// FieldOf returns the name of the offending field for an InvalidFormat error,
// or "" for any other error.
func FieldOf(err error) string {
	if !errors.Is(err, ErrInvalidFormat) {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	field, _ := oopsErr.Context()["field"].(string)
	return field
}

func invalidFormat(field, reason string) error {
	return oops.Code(CodeInvalidFormat).
		With("field", field).
		Wrapf(ErrInvalidFormat, "%s %s", field, reason)
}

func passwordTooShort(minLength int) error {
	return oops.Code(CodePasswordTooShort).
		With("field", "password").
		With("min", minLength).
		Wrapf(ErrPasswordTooShort, "password must be at least %d characters", minLength)
}

func alreadyExists(username string) error {
	return oops.Code(CodeAlreadyExists).
		With("username", username).
		Wrapf(ErrAlreadyExists, "username %q is taken", username)
}

func notFound(username string) error {
	return oops.Code(CodeNotFound).
		With("username", username).
		Wrapf(ErrNotFound, "account %q", username)
}

func withdrawn(username string) error {
	return oops.Code(CodeWithdrawn).
		With("username", username).
		Wrapf(ErrWithdrawn, "account %q", username)
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func invalidToken(reason string) error {
	return oops.Code(CodeInvalidToken).
		With("reason", reason).
		Wrapf(ErrInvalidToken, "%s", reason)
}
