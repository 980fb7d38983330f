// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// TokenTypeBearer is the token_type reported to clients.
const TokenTypeBearer = "bearer"

// dummyPassword seeds the digest verified when no user matches an identifier,
// so unknown identifiers cost the same as wrong passwords.
//
//nolint:gosec // G101: not a credential, it never matches a stored digest.
const dummyPassword = "usermgmt-timing-equalizer"

// SessionState is a step of the authentication state machine.
type SessionState int

// Session states. Anonymous moves to Authenticating when credentials or a
// token are presented, and from there to Authenticated or Rejected.
const (
	StateAnonymous SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateRejected
)

// String returns the state name used in logs and metrics.
func (s SessionState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Authentication methods reported to observers.
const (
	MethodPassword = "password"
	MethodToken    = "token"
)

// SessionObserver is notified of every terminal state reached.
type SessionObserver func(method string, state SessionState)

// Credentials is a login attempt. The password is redacted whenever the
// value is logged or formatted.
type Credentials struct {
	Identifier string
	Password   string
}

// LogValue implements slog.LogValuer.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("identifier", c.Identifier),
		slog.String("password", "[REDACTED]"),
	)
}

// String implements fmt.Stringer.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Identifier: %q, Password: [REDACTED]}", c.Identifier)
}

// GoString implements fmt.GoStringer so %#v stays redacted too.
func (c Credentials) GoString() string {
	return c.String()
}

// IssuedToken is the result of a successful login.
type IssuedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// SessionManager authenticates credentials and session tokens against the
// user store. It holds no per-request state.
type SessionManager struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   *TokenCodec
	logger   *slog.Logger
	observe  SessionObserver
	dummyPHC string
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionLogger sets the logger used for authentication outcomes.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionObserver registers a callback for terminal states.
func WithSessionObserver(fn SessionObserver) SessionOption {
	return func(m *SessionManager) {
		m.observe = fn
	}
}

// NewSessionManager creates a SessionManager. It hashes a throwaway password
// once so failed lookups can be verified at the configured cost.
func NewSessionManager(users UserRepository, hasher PasswordHasher, tokens *TokenCodec, opts ...SessionOption) (*SessionManager, error) {
	if users == nil {
		return nil, oops.Errorf("user repository cannot be nil")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher cannot be nil")
	}
	if tokens == nil {
		return nil, oops.Errorf("token codec cannot be nil")
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").
			With("operation", "hash dummy password").
			Wrap(err)
	}

	m := &SessionManager{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		logger:   slog.Default(),
		dummyPHC: dummy,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Login verifies credentials and issues a session token whose subject is the
// user's email. Unknown identifiers, wrong passwords and inactive accounts
// are indistinguishable to the caller.
func (m *SessionManager) Login(ctx context.Context, creds Credentials) (*IssuedToken, error) {
	m.logger.DebugContext(ctx, "login attempt",
		"state", StateAuthenticating.String(),
		"credentials", creds)

	user, lookupErr := m.users.FindByEmail(ctx, NormalizeEmail(creds.Identifier))

	var target string
	switch {
	case lookupErr == nil:
		target = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		target = m.dummyPHC
	default:
		m.finish(MethodPassword, StateRejected)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(lookupErr)
	}

	// Verify runs on every path so response time does not reveal whether the
	// identifier exists.
	valid := m.hasher.Verify(creds.Password, target)

	if lookupErr != nil || !valid || !user.IsActive {
		m.logger.InfoContext(ctx, "login rejected",
			"state", StateRejected.String(),
			"identifier", creds.Identifier)
		m.finish(MethodPassword, StateRejected)
		return nil, invalidCredentials()
	}

	token, err := m.tokens.Issue(user.Email, 0)
	if err != nil {
		m.finish(MethodPassword, StateRejected)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			With("user_id", user.ID).
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "login succeeded",
		"state", StateAuthenticated.String(),
		"user_id", user.ID)
	m.finish(MethodPassword, StateAuthenticated)

	return &IssuedToken{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   m.tokens.TTL(),
	}, nil
}

// Authenticate resolves a session token to an active user.
func (m *SessionManager) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		m.finish(MethodToken, StateRejected)
		return nil, oops.Code("AUTH_MISSING_TOKEN").Wrap(ErrMissingToken)
	}

	claims, err := m.tokens.Decode(token)
	if err != nil {
		m.logger.DebugContext(ctx, "token rejected",
			"state", StateRejected.String(),
			"error", err.Error())
		m.finish(MethodToken, StateRejected)
		return nil, err
	}
	if claims.Subject == "" {
		m.finish(MethodToken, StateRejected)
		return nil, oops.Code("AUTH_INVALID_TOKEN").
			With("reason", "missing subject").
			Wrap(ErrInvalidToken)
	}

	user, err := m.users.FindByEmail(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		m.logger.DebugContext(ctx, "token subject unknown",
			"state", StateRejected.String(),
			"subject", claims.Subject)
		m.finish(MethodToken, StateRejected)
		return nil, oops.Code("AUTH_UNKNOWN_SUBJECT").
			With("subject", claims.Subject).
			Wrap(ErrUnknownSubject)
	}
	if err != nil {
		m.finish(MethodToken, StateRejected)
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "find user by token subject").
			Wrap(err)
	}
	if !user.IsActive {
		m.finish(MethodToken, StateRejected)
		return nil, oops.Code("AUTH_UNKNOWN_SUBJECT").
			With("subject", claims.Subject).
			With("reason", "inactive").
			Wrap(ErrUnknownSubject)
	}

	m.finish(MethodToken, StateAuthenticated)
	return user, nil
}

func (m *SessionManager) finish(method string, state SessionState) {
	if m.observe != nil {
		m.observe(method, state)
	}
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}
