// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/holomush/usermgmt/internal/auth"
	"github.com/holomush/usermgmt/pkg/errutil"
)

var (
	// ErrForbidden is returned when an authenticated user lacks the privilege
	// a route requires.
	ErrForbidden = errors.New("forbidden")

	// ErrMalformedRequest is returned when a request body cannot be decoded.
	ErrMalformedRequest = errors.New("malformed request")
)

// Response details. Authentication failures share one message per route
// family so callers cannot tell the causes apart.
const (
	detailInvalidCredentials = "invalid credentials"
	detailNotAuthenticated   = "not authenticated"
	detailForbidden          = "not enough privileges"
	detailNotFound           = "user not found"
	detailEmailTaken         = "a user with this email already exists"
	detailUsernameTaken      = "a user with this username already exists"
	detailMalformed          = "malformed request body"
	detailInternal           = "internal server error"
)

// writeError maps err onto a status code and a JSON detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)

	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), s.logger, "request failed", err)
	} else {
		s.logger.DebugContext(r.Context(), "request refused",
			"status", status,
			"code", errutil.Code(err),
			"error", err.Error())
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, detailInvalidCredentials
	case auth.IsAuthFailure(err):
		return http.StatusUnauthorized, detailNotAuthenticated
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, detailForbidden
	case errors.Is(err, auth.ErrConflict):
		if errutil.Code(err) == "AUTH_USERNAME_TAKEN" {
			return http.StatusConflict, detailUsernameTaken
		}
		return http.StatusConflict, detailEmailTaken
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusUnprocessableEntity, validationDetail(err)
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, detailNotFound
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest, detailMalformed
	default:
		return http.StatusInternalServerError, detailInternal
	}
}

// validationDetail strips the sentinel suffix from a validation error so the
// client sees only the rule that failed.
func validationDetail(err error) string {
	msg := strings.TrimSuffix(err.Error(), ": "+auth.ErrInvalidInput.Error())
	if msg == "" || msg == auth.ErrInvalidInput.Error() {
		return "invalid input"
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
