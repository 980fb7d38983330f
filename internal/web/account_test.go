// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/usermgmt/internal/web"
)

func decodeUser(t *testing.T, rec *httptest.ResponseRecorder) web.PublicUser {
	t.Helper()
	var u web.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u), rec.Body.String())
	return u
}

func TestUpdateMe(t *testing.T) {
	f := newFixture(t, web.CarrierAny)
	require.Equal(t, http.StatusCreated, f.register(t, "a@x.com", "a_user", "pw").Code)
	require.Equal(t, http.StatusCreated, f.register(t, "b@x.com", "b_user", "pw").Code)
	token := f.token(t, "a@x.com", "pw")

	t.Run("changes profile and ignores privilege flags", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/me", token, map[string]any{
			"username":     "a_renamed",
			"full_name":    "Ada",
			"is_superuser": true,
			"is_active":    false,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		u := decodeUser(t, rec)
		assert.Equal(t, "a_renamed", u.Username)
		require.NotNil(t, u.FullName)
		assert.Equal(t, "Ada", *u.FullName)
		assert.False(t, u.IsSuperuser)
		assert.True(t, u.IsActive)

		me := f.do(bearer(http.MethodGet, "/users/me", token))
		require.Equal(t, http.StatusOK, me.Code)
		assert.Equal(t, "a_renamed", decodeUser(t, me).Username)
	})

	t.Run("username held by another user is a conflict", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/me", token, map[string]any{"username": "B_USER"}))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "a user with this username already exists", decodeDetail(t, rec))
	})

	t.Run("email held by another user is a conflict", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/me", token, map[string]any{"email": "b@x.com"}))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "a user with this email already exists", decodeDetail(t, rec))
	})

	t.Run("invalid username is unprocessable", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/me", token, map[string]any{"username": "x"}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/users/me", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "malformed request body", decodeDetail(t, rec))
	})

	t.Run("password change takes effect at login", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/me", token, map[string]any{"password": "n3w"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		assert.Equal(t, http.StatusUnauthorized, f.do(formRequest("/auth/token", "a@x.com", "pw")).Code)
		assert.NotEmpty(t, f.token(t, "a@x.com", "n3w"))
	})

	t.Run("email change invalidates the old token", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/me", token, map[string]any{"email": "a2@x.com"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		assert.Equal(t, http.StatusUnauthorized, f.do(bearer(http.MethodGet, "/users/me", token)).Code)
		assert.NotEmpty(t, f.token(t, "a2@x.com", "n3w"))
	})

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/users/me", strings.NewReader(`{}`))
		assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
	})
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t, web.CarrierAny)
	f.mustSuperuser(t, "root@x.com", "root", "pw")
	require.Equal(t, http.StatusCreated, f.register(t, "a@x.com", "a_user", "pw").Code)
	rootToken := f.token(t, "root@x.com", "pw")
	userToken := f.token(t, "a@x.com", "pw")

	t.Run("regular user is forbidden", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/2", userToken, map[string]any{"is_superuser": true}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("superuser sets flags on another user", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/2", rootToken, map[string]any{
			"is_verified": false,
			"is_active":   false,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		u := decodeUser(t, rec)
		assert.False(t, u.IsVerified)
		assert.False(t, u.IsActive)
		assert.Equal(t, "a_user", u.Username)
	})

	t.Run("deactivated user's token is refused", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.do(bearer(http.MethodGet, "/users/me", userToken)).Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/999", rootToken, map[string]any{"username": "zed"}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		rec := f.do(jsonBearer(t, http.MethodPatch, "/users/abc", rootToken, map[string]any{}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t, web.CarrierAny)
	f.mustSuperuser(t, "root@x.com", "root", "pw")
	require.Equal(t, http.StatusCreated, f.register(t, "a@x.com", "a_user", "pw").Code)
	rootToken := f.token(t, "root@x.com", "pw")
	userToken := f.token(t, "a@x.com", "pw")

	t.Run("regular user is forbidden", func(t *testing.T) {
		rec := f.do(bearer(http.MethodDelete, "/users/1", userToken))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("superuser deletes and the user is gone", func(t *testing.T) {
		rec := f.do(bearer(http.MethodDelete, "/users/2", rootToken))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())

		assert.Equal(t, http.StatusNotFound, f.do(bearer(http.MethodGet, "/users/2", rootToken)).Code)
		assert.Equal(t, http.StatusNotFound, f.do(bearer(http.MethodDelete, "/users/2", rootToken)).Code)
	})

	t.Run("deleted user's token is refused", func(t *testing.T) {
		rec := f.do(bearer(http.MethodGet, "/users/me", userToken))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "not authenticated", decodeDetail(t, rec))
	})

	t.Run("non-numeric id", func(t *testing.T) {
		rec := f.do(bearer(http.MethodDelete, "/users/abc", rootToken))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("route pattern is recorded", func(t *testing.T) {
		assert.Contains(t, f.metrics.routes, "DELETE /users/{id}")
	})
}
