// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/holomush/usermgmt/internal/auth"
)

// Listing bounds for GET /users/.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// maxBodyBytes caps JSON and form request bodies.
const maxBodyBytes = 1 << 20

// Registration outcomes reported to the metrics recorder.
const (
	outcomeCreated  = "created"
	outcomeConflict = "conflict"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

// handleToken exchanges form credentials for a bearer token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	issued, err := s.login(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: issued.AccessToken,
		TokenType:   issued.TokenType,
	})
}

// handleCookieLogin exchanges form credentials for a session cookie.
func (s *Server) handleCookieLogin(w http.ResponseWriter, r *http.Request) {
	issued, err := s.login(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.carrier.SetCookie(w, issued.AccessToken)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.carrier.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// login reads the OAuth2 password form. The username field carries the email.
func (s *Server) login(w http.ResponseWriter, r *http.Request) (*auth.IssuedToken, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, oops.Code("WEB_MALFORMED_FORM").
			With("decode_error", err.Error()).
			Wrap(ErrMalformedRequest)
	}
	creds := auth.Credentials{
		Identifier: r.PostForm.Get("username"),
		Password:   r.PostForm.Get("password"),
	}
	if creds.Identifier == "" || creds.Password == "" {
		return nil, oops.Code("WEB_MISSING_CREDENTIALS").
			Wrapf(auth.ErrInvalidInput, "username and password are required")
	}
	return s.sessions.Login(r.Context(), creds)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.metrics.RecordRegistration(outcomeInvalid)
		s.writeError(w, r, oops.Code("WEB_MALFORMED_BODY").
			With("decode_error", err.Error()).
			Wrap(ErrMalformedRequest))
		return
	}

	user, err := s.registrar.Register(r.Context(), auth.Registration{
		Email:    req.Email,
		Username: req.Username,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		s.metrics.RecordRegistration(registrationOutcome(err))
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordRegistration(outcomeCreated)
	writeJSON(w, http.StatusCreated, NewPublicUser(user))
}

func registrationOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrConflict):
		return outcomeConflict
	case errors.Is(err, auth.ErrInvalidInput):
		return outcomeInvalid
	default:
		return outcomeError
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, NewPublicUser(user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", DefaultListLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit == 0 {
		s.writeError(w, r, oops.Code("WEB_INVALID_QUERY").
			With("param", "limit").
			Wrapf(auth.ErrInvalidInput, "limit must be positive"))
		return
	}
	limit = min(limit, MaxListLimit)

	users, err := s.users.List(r.Context(), offset, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, NewPublicUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.users.FindByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPublicUser(user))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	me, _ := auth.UserFromContext(r.Context())
	upd, err := s.decodeUpdate(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.accounts.UpdateSelf(r.Context(), me.ID, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPublicUser(user))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	upd, err := s.decodeUpdate(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.accounts.Update(r.Context(), id, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPublicUser(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeUpdate(w http.ResponseWriter, r *http.Request) (auth.UserUpdate, error) {
	var req updateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return auth.UserUpdate{}, oops.Code("WEB_MALFORMED_BODY").
			With("decode_error", err.Error()).
			Wrap(ErrMalformedRequest)
	}
	return auth.UserUpdate{
		Email:       req.Email,
		Username:    req.Username,
		FullName:    req.FullName,
		Password:    req.Password,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
		IsVerified:  req.IsVerified,
	}, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, oops.Code("WEB_INVALID_PATH").
			With("param", "id").
			Wrapf(auth.ErrInvalidInput, "id must be an integer")
	}
	return id, nil
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, oops.Code("WEB_INVALID_QUERY").
			With("param", name).
			With("value", raw).
			Wrapf(auth.ErrInvalidInput, "%s must be a non-negative integer", name)
	}
	return v, nil
}
