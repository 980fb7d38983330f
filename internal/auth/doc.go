// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides registration and token authentication for usermgmt.
//
// # Domain Types
//
// User is the stored account. It is created only through Registrar, which
// validates the email and username, hashes the password and applies the
// account defaults. Credentials and Registration carry plaintext passwords
// and redact them when logged.
//
// # Services
//
//   - PasswordHasher - bcrypt (default) or argon2id digests
//   - TokenCodec - HMAC-signed JWTs carrying sub, exp and aud
//   - SessionManager - login with credentials, authenticate with a token
//   - Registrar - account creation with email uniqueness
//
// Services are created with New* constructors that validate dependencies.
// Persistence is reached only through UserRepository; see package
// internal/auth/postgres.
//
// # Errors
//
// Every returned error wraps one of the package sentinels (ErrInvalidCredentials,
// ErrInvalidToken, ErrConflict, ErrStore, ...) and carries an oops code.
package auth
