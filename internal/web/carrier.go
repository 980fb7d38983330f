// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// CarrierMode selects where session tokens are read from.
type CarrierMode string

// Carrier modes.
const (
	CarrierCookie CarrierMode = "cookie"
	CarrierHeader CarrierMode = "header"
	CarrierAny    CarrierMode = "any"
)

// DefaultCookieName is the session cookie name used when none is configured.
const DefaultCookieName = "bonds"

// ParseCarrierMode validates a configured carrier name.
func ParseCarrierMode(mode string) (CarrierMode, error) {
	switch m := CarrierMode(strings.ToLower(mode)); m {
	case CarrierCookie, CarrierHeader, CarrierAny:
		return m, nil
	case "":
		return CarrierAny, nil
	default:
		return "", oops.Code("WEB_UNKNOWN_CARRIER").
			With("carrier", mode).
			Errorf("unknown token carrier %q", mode)
	}
}

// Carrier moves session tokens between the client and the server.
type Carrier struct {
	Mode     CarrierMode
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	// TTL is the cookie Max-Age and should match the token lifetime.
	TTL time.Duration
}

// Extract returns the token presented with r, or "" when there is none.
// In CarrierAny mode the cookie wins over the Authorization header.
func (c Carrier) Extract(r *http.Request) string {
	if c.Mode != CarrierHeader {
		if ck, err := r.Cookie(c.cookieName()); err == nil && ck.Value != "" {
			return ck.Value
		}
	}
	if c.Mode != CarrierCookie {
		return bearerToken(r.Header.Get("Authorization"))
	}
	return ""
}

// SetCookie stores token in the session cookie.
func (c Carrier) SetCookie(w http.ResponseWriter, token string) {
	ck := c.cookie()
	ck.Value = token
	ck.MaxAge = int(c.TTL / time.Second)
	http.SetCookie(w, ck)
}

// ClearCookie expires the session cookie.
func (c Carrier) ClearCookie(w http.ResponseWriter) {
	ck := c.cookie()
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

func (c Carrier) cookie() *http.Cookie {
	sameSite := c.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     c.cookieName(),
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}

func (c Carrier) cookieName() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

// bearerToken parses "Bearer <token>"; the scheme is case-insensitive.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
