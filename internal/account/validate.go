// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Field policy limits.
const (
	UsernameMinLength = 10
	UsernameMaxLength = 20
	PasswordMinLength = 10
	NameMaxLength     = 50
	EmailMaxLength    = 254
	BioMaxLength      = 255
)

// PasswordSymbols is the set of punctuation a password must draw from.
const PasswordSymbols = "!@#$%^&*?_"

// RegisterInput holds the fields submitted for registration.
type RegisterInput struct {
	Username string
	Password string
	Name     string
	Email    string
	Bio      string
}

// Validate checks every field in order and returns the first failure.
func (in RegisterInput) Validate() error {
	checks := []func() error{
		func() error { return ValidateUsername(in.Username) },
		func() error { return ValidatePassword(in.Password) },
		func() error { return ValidateName(in.Name) },
		func() error { return ValidateEmail(in.Email) },
		func() error { return ValidateBio(in.Bio) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateUsername requires 10 to 20 ASCII letters or digits.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < UsernameMinLength || n > UsernameMaxLength {
		return invalidFormat("username",
			fmt.Sprintf("must be %d-%d characters", UsernameMinLength, UsernameMaxLength))
	}
	for _, r := range username {
		if !isASCIILetter(r) && !isASCIIDigit(r) {
			return invalidFormat("username", "must contain only letters and digits")
		}
	}
	return nil
}

// ValidatePassword requires at least PasswordMinLength characters including
// a letter, a digit and one of PasswordSymbols. Short passwords fail with
// ErrPasswordTooShort before the composition rules are checked.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < PasswordMinLength {
		return passwordTooShort(PasswordMinLength)
	}

	var letter, digit, symbol bool
	for _, r := range password {
		switch {
		case isASCIILetter(r):
			letter = true
		case isASCIIDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}

	switch {
	case !letter:
		return invalidFormat("password", "must contain a letter")
	case !digit:
		return invalidFormat("password", "must contain a digit")
	case !symbol:
		return invalidFormat("password", "must contain one of "+PasswordSymbols)
	}
	return nil
}

// ValidateName accepts an empty name.
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) > NameMaxLength {
		return invalidFormat("name", fmt.Sprintf("must be at most %d characters", NameMaxLength))
	}
	return nil
}

// ValidateEmail accepts an empty email. A non-empty value must be a bare
// address with a domain part, e.g. user@example.com.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	if len(email) > EmailMaxLength {
		return invalidFormat("email", fmt.Sprintf("must be at most %d characters", EmailMaxLength))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return invalidFormat("email", "must be a valid email address")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return invalidFormat("email", "must be a valid email address")
	}
	return nil
}

// ValidateBio accepts an empty bio.
func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > BioMaxLength {
		return invalidFormat("bio", fmt.Sprintf("must be at most %d characters", BioMaxLength))
	}
	return nil
}

func isASCIILetter(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func isASCIIDigit(r rune) bool {
	return '0' <= r && r <= '9'
}
