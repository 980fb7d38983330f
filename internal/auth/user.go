// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
)

// MaxEmailLength bounds the stored email address.
const MaxEmailLength = 254

// usernameRegex matches usernames that:
// - Start with a letter or digit
// - Contain only letters, digits, underscores, dots and hyphens
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// User is a stored account. PasswordHash is an opaque digest and never leaves
// the process.
type User struct {
	ID           int64
	Email        string
	Username     string
	FullName     *string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	IsVerified   bool
	RoleID       *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail trims surrounding whitespace. Case is preserved for storage;
// lookups compare case-insensitively.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// ValidateEmail checks that email is a single bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_REGISTRATION").
			With("field", "email").
			Wrapf(ErrInvalidInput, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_REGISTRATION").
			With("field", "email").
			With("max", MaxEmailLength).
			Wrapf(ErrInvalidInput, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return oops.Code("AUTH_INVALID_REGISTRATION").
			With("field", "email").
			Wrapf(ErrInvalidInput, "email is not a valid address")
	}
	return nil
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter or digit
// - Can contain only letters, digits, underscores, dots and hyphens
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_REGISTRATION").
			With("field", "username").
			Wrapf(ErrInvalidInput, "username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_REGISTRATION").
			With("field", "username").
			With("min", MinUsernameLength).
			Wrapf(ErrInvalidInput, "username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_REGISTRATION").
			With("field", "username").
			With("max", MaxUsernameLength).
			Wrapf(ErrInvalidInput, "username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_REGISTRATION").
			With("field", "username").
			Wrapf(ErrInvalidInput, "username must start with a letter or digit and contain only letters, digits, '_', '.' and '-'")
	}
	return nil
}

// UserRepository manages user persistence. Implementations run each call in
// its own transaction and hold no state between calls.
type UserRepository interface {
	// FindByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID retrieves a user by ID.
	// Returns ErrNotFound if no user has the given ID.
	FindByID(ctx context.Context, id int64) (*User, error)

	// List returns users ordered by ID.
	List(ctx context.Context, offset, limit int) ([]*User, error)

	// Create stores a new user and fills in ID, CreatedAt and UpdatedAt.
	// Returns ErrConflict if the email or username is already taken.
	Create(ctx context.Context, user *User) error

	// Update writes every mutable field of user and refreshes UpdatedAt.
	// Returns ErrNotFound if the user no longer exists and ErrConflict if
	// the new email or username is taken.
	Update(ctx context.Context, user *User) error

	// Delete removes the user with the given ID.
	// Returns ErrNotFound if no user has the given ID.
	Delete(ctx context.Context, id int64) error
}

type userContextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the authenticated user attached by WithUser.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}
