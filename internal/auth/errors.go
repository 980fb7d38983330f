// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors. Every error returned by this package wraps exactly one of
// these, so callers classify with errors.Is and read the oops code for detail.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")

	// ErrStore marks an opaque failure of the backing store.
	ErrStore = errors.New("store error")

	// ErrInvalidInput marks input rejected by validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is the single outcome for unknown identifiers,
	// wrong passwords and inactive accounts at login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingToken is returned when a request carries no session token.
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned for malformed, forged, mis-addressed or expired tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownSubject is returned when a valid token names no active user.
	ErrUnknownSubject = errors.New("unknown subject")
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Wrapf(ErrInvalidInput, "password cannot be empty")

// ErrPasswordTooLong is returned when a password exceeds what bcrypt can hash.
var ErrPasswordTooLong = oops.Code("AUTH_PASSWORD_TOO_LONG").
	With("max_bytes", bcryptMaxPasswordBytes).
	Wrapf(ErrInvalidInput, "password is too long")

// IsAuthFailure reports whether err is one of the expected authentication
// outcomes, as opposed to an infrastructure failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrUnknownSubject)
}
