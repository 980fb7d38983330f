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

// UserUpdate is a partial change to an account. Nil fields keep their
// current value. An empty FullName clears it.
type UserUpdate struct {
	Email       *string
	Username    *string
	FullName    *string
	Password    *string
	IsActive    *bool
	IsSuperuser *bool
	IsVerified  *bool
}

// LogValue implements slog.LogValuer.
func (u UserUpdate) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 3)
	if u.Email != nil {
		attrs = append(attrs, slog.String("email", *u.Email))
	}
	if u.Username != nil {
		attrs = append(attrs, slog.String("username", *u.Username))
	}
	if u.Password != nil {
		attrs = append(attrs, slog.String("password", "[REDACTED]"))
	}
	return slog.GroupValue(attrs...)
}

// AccountManager edits and removes existing accounts.
type AccountManager struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// AccountOption configures an AccountManager.
type AccountOption func(*AccountManager)

// WithAccountLogger sets the logger used for account changes.
func WithAccountLogger(logger *slog.Logger) AccountOption {
	return func(m *AccountManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewAccountManager creates an AccountManager.
func NewAccountManager(users UserRepository, hasher PasswordHasher, opts ...AccountOption) (*AccountManager, error) {
	if users == nil {
		return nil, oops.Errorf("user repository cannot be nil")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher cannot be nil")
	}
	m := &AccountManager{
		users:  users,
		hasher: hasher,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// UpdateSelf applies the profile fields of upd to account id. The activity,
// superuser and verification flags are ignored.
func (m *AccountManager) UpdateSelf(ctx context.Context, id int64, upd UserUpdate) (*User, error) {
	upd.IsActive, upd.IsSuperuser, upd.IsVerified = nil, nil, nil
	return m.update(ctx, id, upd)
}

// Update applies every field of upd to account id. Callers authorize it.
func (m *AccountManager) Update(ctx context.Context, id int64, upd UserUpdate) (*User, error) {
	return m.update(ctx, id, upd)
}

func (m *AccountManager) update(ctx context.Context, id int64, upd UserUpdate) (*User, error) {
	user, err := m.users.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, oops.Code("AUTH_UPDATE_FAILED").
			With("operation", "load user").
			With("user_id", id).
			Wrap(err)
	}

	if upd.Email != nil {
		email := NormalizeEmail(*upd.Email)
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
		if !strings.EqualFold(email, user.Email) {
			if err := m.checkEmailFree(ctx, id, email); err != nil {
				return nil, err
			}
		}
		user.Email = email
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
		user.Username = username
	}
	if upd.FullName != nil {
		if name := strings.TrimSpace(*upd.FullName); name == "" {
			user.FullName = nil
		} else {
			user.FullName = &name
		}
	}
	if upd.Password != nil {
		digest, err := m.hasher.Hash(*upd.Password)
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		if err != nil {
			return nil, oops.Code("AUTH_UPDATE_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
		user.PasswordHash = digest
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	if upd.IsSuperuser != nil {
		user.IsSuperuser = *upd.IsSuperuser
	}
	if upd.IsVerified != nil {
		user.IsVerified = *upd.IsVerified
	}

	if err := m.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			if conflictField(err) == ConflictFieldUsername {
				return nil, oops.Code("AUTH_USERNAME_TAKEN").
					With("username", user.Username).
					Wrap(ErrConflict)
			}
			return nil, emailTaken(user.Email)
		case errors.Is(err, ErrNotFound):
			return nil, err
		}
		return nil, oops.Code("AUTH_UPDATE_FAILED").
			With("operation", "update user").
			With("user_id", id).
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "user updated", "user_id", id, "changes", upd)
	return user, nil
}

func (m *AccountManager) checkEmailFree(ctx context.Context, id int64, email string) error {
	other, err := m.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if other.ID != id {
			return emailTaken(email)
		}
		return nil
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return oops.Code("AUTH_UPDATE_FAILED").
			With("operation", "check email uniqueness").
			Wrap(err)
	}
}

// Delete removes account id. Tokens already issued for it stop resolving.
func (m *AccountManager) Delete(ctx context.Context, id int64) error {
	err := m.users.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return oops.Code("AUTH_DELETE_FAILED").
			With("user_id", id).
			Wrap(err)
	}
	m.logger.InfoContext(ctx, "user deleted", "user_id", id)
	return nil
}
