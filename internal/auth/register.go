// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// Conflict fields reported by UserRepository.Create through the "field"
// context key.
const (
	ConflictFieldEmail    = "email"
	ConflictFieldUsername = "username"
)

// Registration is a request to create an account.
type Registration struct {
	Email    string
	Username string
	FullName *string
	Password string
}

// LogValue implements slog.LogValuer.
func (r Registration) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", r.Email),
		slog.String("username", r.Username),
		slog.String("password", "[REDACTED]"),
	)
}

// Registrar creates accounts with a unique email.
type Registrar struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithRegistrarLogger sets the logger used for registration outcomes.
func WithRegistrarLogger(logger *slog.Logger) RegistrarOption {
	return func(r *Registrar) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistrar creates a Registrar.
func NewRegistrar(users UserRepository, hasher PasswordHasher, opts ...RegistrarOption) (*Registrar, error) {
	if users == nil {
		return nil, oops.Errorf("user repository cannot be nil")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher cannot be nil")
	}
	r := &Registrar{
		users:  users,
		hasher: hasher,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register creates an active, verified, non-superuser account.
func (r *Registrar) Register(ctx context.Context, reg Registration) (*User, error) {
	return r.register(ctx, reg, false)
}

// RegisterSuperuser creates an active, verified superuser account.
func (r *Registrar) RegisterSuperuser(ctx context.Context, reg Registration) (*User, error) {
	return r.register(ctx, reg, true)
}

func (r *Registrar) register(ctx context.Context, reg Registration, superuser bool) (*User, error) {
	reg.Email = NormalizeEmail(reg.Email)
	reg.Username = strings.TrimSpace(reg.Username)
	if reg.FullName != nil && strings.TrimSpace(*reg.FullName) == "" {
		reg.FullName = nil
	}

	if err := ValidateEmail(reg.Email); err != nil {
		return nil, err
	}
	if err := ValidateUsername(reg.Username); err != nil {
		return nil, err
	}
	if reg.Password == "" {
		return nil, oops.Code("AUTH_INVALID_REGISTRATION").
			With("field", "password").
			Wrapf(ErrInvalidInput, "password cannot be empty")
	}

	_, err := r.users.FindByEmail(ctx, reg.Email)
	switch {
	case err == nil:
		return nil, emailTaken(reg.Email)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check email uniqueness").
			Wrap(err)
	}

	digest, err := r.hasher.Hash(reg.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user := &User{
		Email:        reg.Email,
		Username:     reg.Username,
		FullName:     reg.FullName,
		PasswordHash: digest,
		IsActive:     true,
		IsVerified:   true,
		IsSuperuser:  superuser,
	}

	if err := r.users.Create(ctx, user); err != nil {
		// A concurrent registration can pass the pre-check and lose on the
		// unique index.
		if errors.Is(err, ErrConflict) {
			if conflictField(err) == ConflictFieldUsername {
				return nil, oops.Code("AUTH_USERNAME_TAKEN").
					With("username", reg.Username).
					Wrap(ErrConflict)
			}
			return nil, emailTaken(reg.Email)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	r.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID,
		"superuser", superuser)
	return user, nil
}

func emailTaken(email string) error {
	return oops.Code("AUTH_EMAIL_TAKEN").
		With("email", email).
		Wrap(ErrConflict)
}

func conflictField(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	field, _ := oopsErr.Context()["field"].(string)
	return field
}
