// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultTokenTTL  = 60 * time.Minute
	DefaultAudience  = "fastapi-users:auth"
	DefaultAlgorithm = "HS256"
)

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	// Secret is the HMAC key shared by every instance that must accept the token.
	Secret []byte
	// Algorithm is one of HS256, HS384 or HS512.
	Algorithm string
	// Audience is written to aud on issue and required on decode.
	Audience string
	// TTL is the lifetime used when Issue is called without one.
	TTL time.Duration
}

// Claims is the decoded payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HMAC-signed session tokens. It holds only
// immutable configuration and is safe for concurrent use.
type TokenCodec struct {
	secret   []byte
	method   jwt.SigningMethod
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock replaces the time source used for both issuing and validation.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec creates a TokenCodec. Empty Algorithm, Audience and TTL fall
// back to the package defaults; an empty secret is rejected.
func NewTokenCodec(cfg TokenConfig, opts ...TokenOption) (*TokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG_INVALID").Errorf("token secret cannot be empty")
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, oops.Code("AUTH_TOKEN_CONFIG_INVALID").
			With("algorithm", alg).
			Errorf("unsupported token algorithm %q", alg)
	}

	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	c := &TokenCodec{
		secret:   secret,
		method:   method,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the default token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Audience returns the audience tag written into every token.
func (c *TokenCodec) Audience() string {
	return c.audience
}

// Issue signs a token for subject that expires after ttl. A non-positive ttl
// uses the configured default.
func (c *TokenCodec) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").Errorf("token subject cannot be empty")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").
			With("algorithm", c.method.Alg()).
			Wrap(err)
	}
	return signed, nil
}

// Decode verifies the signature, audience and expiry of token and returns its
// claims. A token is valid only while exp is strictly after now. Every
// rejection wraps ErrInvalidToken.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, c.keyFunc,
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_TOKEN").
			With("reason", rejectionReason(err)).
			Wrap(fmt.Errorf("%w: %w", ErrInvalidToken, err))
	}
	return claims, nil
}

func (c *TokenCodec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return c.secret, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing claim"
	default:
		return "invalid"
	}
}
