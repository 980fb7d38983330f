// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth persistence on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/oops"

	"github.com/holomush/usermgmt/internal/auth"
)

// usernameUniqueIndex is the unique index on LOWER(username); any other
// unique violation on users is the email index.
const usernameUniqueIndex = "users_username_key"

const userColumns = `id, email, username, full_name, password_hash,
	       is_active, is_superuser, is_verified, role_id, created_at, updated_at`

// TxBeginner opens transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var readOnly = pgx.TxOptions{AccessMode: pgx.ReadOnly}

// UserRepository implements auth.UserRepository using PostgreSQL. Every method
// runs in its own transaction that is committed or rolled back before return.
type UserRepository struct {
	db     TxBeginner
	logger *slog.Logger
}

// NewUserRepository creates a new UserRepository over a shared pool.
func NewUserRepository(db TxBeginner) *UserRepository {
	return &UserRepository{db: db, logger: slog.Default()}
}

// WithLogger returns a copy of r that logs rollback failures to logger.
func (r *UserRepository) WithLogger(logger *slog.Logger) *UserRepository {
	cp := *r
	if logger != nil {
		cp.logger = logger
	}
	return &cp
}

// FindByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var user *auth.User
	err := r.inTx(ctx, readOnly, func(tx pgx.Tx) error {
		var scanErr error
		user, scanErr = scanUser(tx.QueryRow(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE LOWER(email) = LOWER($1)
		`, email))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_BY_EMAIL_FAILED").
			With("operation", "find user by email").
			Wrap(storeErr(err))
	}
	return user, nil
}

// FindByID retrieves a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	var user *auth.User
	err := r.inTx(ctx, readOnly, func(tx pgx.Tx) error {
		var scanErr error
		user, scanErr = scanUser(tx.QueryRow(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE id = $1
		`, id))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_BY_ID_FAILED").
			With("operation", "find user by id").
			With("id", id).
			Wrap(storeErr(err))
	}
	return user, nil
}

// List returns up to limit users ordered by ID, skipping offset.
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*auth.User, error) {
	users := make([]*auth.User, 0)
	err := r.inTx(ctx, readOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+userColumns+`
			FROM users
			ORDER BY id
			LIMIT $1 OFFSET $2
		`, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			user, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "list users").
			With("offset", offset).
			With("limit", limit).
			Wrap(storeErr(err))
	}
	return users, nil
}

// Create inserts user and fills in the store-assigned fields.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	err := r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO users (
				email, username, full_name, password_hash,
				is_active, is_superuser, is_verified, role_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		`,
			user.Email,
			user.Username,
			user.FullName,
			user.PasswordHash,
			user.IsActive,
			user.IsSuperuser,
			user.IsVerified,
			user.RoleID,
		).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	})

	if conflict := uniqueConflict(err); conflict != nil {
		return conflict
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(storeErr(err))
	}
	return nil
}

// Update writes the mutable fields of user and refreshes UpdatedAt.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	err := r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			UPDATE users SET
				email = $2, username = $3, full_name = $4, password_hash = $5,
				is_active = $6, is_superuser = $7, is_verified = $8, role_id = $9,
				updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`,
			user.ID,
			user.Email,
			user.Username,
			user.FullName,
			user.PasswordHash,
			user.IsActive,
			user.IsSuperuser,
			user.IsVerified,
			user.RoleID,
		).Scan(&user.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID).
			Wrap(auth.ErrNotFound)
	}
	if conflict := uniqueConflict(err); conflict != nil {
		return conflict
	}
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID).
			Wrap(storeErr(err))
	}
	return nil
}

// Delete removes a user by ID.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	err := r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id).
			Wrap(storeErr(err))
	}
	return nil
}

// uniqueConflict maps a unique violation to auth.ErrConflict tagged with the
// offending field. It returns nil for any other error.
func uniqueConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	field := auth.ConflictFieldEmail
	if pgErr.ConstraintName == usernameUniqueIndex {
		field = auth.ConflictFieldUsername
	}
	return oops.Code("USER_CONFLICT").
		With("field", field).
		With("constraint", pgErr.ConstraintName).
		Wrap(auth.ErrConflict)
}

// inTx runs fn in a transaction. The transaction is rolled back when fn
// fails or panics and committed otherwise. Rollback runs on a context that
// survives cancellation of ctx.
func (r *UserRepository) inTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.rollback(ctx, tx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		r.rollback(ctx, tx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *UserRepository) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.WarnContext(ctx, "transaction rollback failed", "error", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser returns pgx.ErrNoRows unchanged so callers can map it.
func scanUser(row rowScanner) (*auth.User, error) {
	var (
		user     auth.User
		fullName pgtype.Text
		roleID   pgtype.Int8
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&fullName,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsSuperuser,
		&user.IsVerified,
		&roleID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}
	if fullName.Valid {
		user.FullName = &fullName.String
	}
	if roleID.Valid {
		user.RoleID = &roleID.Int64
	}
	return &user, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %w", auth.ErrStore, err)
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
