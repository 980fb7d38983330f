// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/usermgmt/internal/auth"
	"github.com/holomush/usermgmt/internal/web"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// memRepo is an in-memory auth.UserRepository enforcing the same uniqueness
// rules as the database.
type memRepo struct {
	mu        sync.Mutex
	byID      map[int64]*auth.User
	nextID    int64
	failWith  error
	lastLimit int
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[int64]*auth.User{}}
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

func (m *memRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

func (m *memRepo) List(_ context.Context, offset, limit int) ([]*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	ids := make([]int64, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := []*auth.User{}
	for i, id := range ids {
		if i < offset || len(out) == limit {
			continue
		}
		cp := *m.byID[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return oops.Code("USER_CONFLICT").With("field", auth.ConflictFieldEmail).Wrap(auth.ErrConflict)
		}
		if strings.EqualFold(u.Username, user.Username) {
			return oops.Code("USER_CONFLICT").With("field", auth.ConflictFieldUsername).Wrap(auth.ErrConflict)
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	m.byID[user.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	for id, u := range m.byID {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(u.Email, user.Email) {
			return oops.Code("USER_CONFLICT").With("field", auth.ConflictFieldEmail).Wrap(auth.ErrConflict)
		}
		if strings.EqualFold(u.Username, user.Username) {
			return oops.Code("USER_CONFLICT").With("field", auth.ConflictFieldUsername).Wrap(auth.ErrConflict)
		}
	}
	user.UpdatedAt = time.Now()
	cp := *user
	m.byID[user.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(m.byID, id)
	return nil
}

// recorder captures metrics calls.
type recorder struct {
	mu            sync.Mutex
	routes        []string
	registrations []string
}

func (r *recorder) ObserveRequest(route, method string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, method+" "+route)
}

func (r *recorder) RecordRegistration(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, outcome)
}

type fixture struct {
	repo      *memRepo
	registrar *auth.Registrar
	metrics   *recorder
	server    *web.Server
}

func newFixture(t *testing.T, mode web.CarrierMode, opts ...func(*web.Deps)) *fixture {
	t.Helper()
	repo := newMemRepo()
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: testSecret})
	require.NoError(t, err)
	sessions, err := auth.NewSessionManager(repo, hasher, codec)
	require.NoError(t, err)
	registrar, err := auth.NewRegistrar(repo, hasher)
	require.NoError(t, err)
	accounts, err := auth.NewAccountManager(repo, hasher)
	require.NoError(t, err)

	metrics := &recorder{}
	deps := web.Deps{
		Sessions:  sessions,
		Registrar: registrar,
		Users:     repo,
		Accounts:  accounts,
		Carrier: web.Carrier{
			Mode: mode,
			Name: web.DefaultCookieName,
			TTL:  codec.TTL(),
		},
		Metrics: metrics,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	server, err := web.NewServer(web.Config{Addr: "127.0.0.1:0"}, deps)
	require.NoError(t, err)
	return &fixture{repo: repo, registrar: registrar, metrics: metrics, server: server}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) register(t *testing.T, email, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"email": email, "username": username, "password": password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return f.do(req)
}

func (f *fixture) mustSuperuser(t *testing.T, email, username, password string) {
	t.Helper()
	_, err := f.registrar.RegisterSuperuser(context.Background(), auth.Registration{
		Email: email, Username: username, Password: password,
	})
	require.NoError(t, err)
}

func formRequest(path, username, password string) *http.Request {
	form := url.Values{}
	if username != "" {
		form.Set("username", username)
	}
	if password != "" {
		form.Set("password", password)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (f *fixture) token(t *testing.T, email, password string) string {
	t.Helper()
	rec := f.do(formRequest("/auth/token", email, password))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["access_token"]
}

func bearer(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func jsonBearer(t *testing.T, method, path, token string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body["detail"]
}
