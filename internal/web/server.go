// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes registration, login and user lookup over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/holomush/usermgmt/internal/auth"
)

// Authenticator logs users in and resolves session tokens.
// *auth.SessionManager satisfies it.
type Authenticator interface {
	Login(ctx context.Context, creds auth.Credentials) (*auth.IssuedToken, error)
	Authenticate(ctx context.Context, token string) (*auth.User, error)
}

// Registrar creates accounts. *auth.Registrar satisfies it.
type Registrar interface {
	Register(ctx context.Context, reg auth.Registration) (*auth.User, error)
}

// UserDirectory answers read-only user queries.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (*auth.User, error)
	List(ctx context.Context, offset, limit int) ([]*auth.User, error)
}

// AccountEditor changes and removes accounts. *auth.AccountManager
// satisfies it.
type AccountEditor interface {
	UpdateSelf(ctx context.Context, id int64, upd auth.UserUpdate) (*auth.User, error)
	Update(ctx context.Context, id int64, upd auth.UserUpdate) (*auth.User, error)
	Delete(ctx context.Context, id int64) error
}

// Recorder receives request and registration measurements.
// *observability.Metrics satisfies it.
type Recorder interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
	RecordRegistration(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveRequest(string, string, int, time.Duration) {}
func (noopRecorder) RecordRegistration(string)                        {}

// Config holds listener settings. Zero timeouts fall back to defaults.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// Deps are the collaborators the HTTP surface needs. Metrics and Logger are
// optional.
type Deps struct {
	Sessions  Authenticator
	Registrar Registrar
	Users     UserDirectory
	Accounts  AccountEditor
	Carrier   Carrier
	Metrics   Recorder
	Logger    *slog.Logger
}

// Server serves the public API.
type Server struct {
	cfg        Config
	sessions   Authenticator
	registrar  Registrar
	users      UserDirectory
	accounts   AccountEditor
	carrier    Carrier
	metrics    Recorder
	logger     *slog.Logger
	handler    http.Handler
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer builds the router. It does not listen until Start.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Registrar == nil || deps.Users == nil || deps.Accounts == nil {
		return nil, oops.Code("WEB_INVALID_DEPS").
			Errorf("sessions, registrar, users and accounts are required")
	}
	s := &Server{
		cfg:       cfg,
		sessions:  deps.Sessions,
		registrar: deps.Registrar,
		users:     deps.Users,
		accounts:  deps.Accounts,
		carrier:   deps.Carrier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(traceContext)
	r.Use(requestID)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/test", s.handleTest)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", s.handleToken)
		r.Post("/register", s.handleRegister)
		r.Post("/jwt/login", s.handleCookieLogin)
		r.With(s.requireUser).Post("/jwt/logout", s.handleLogout)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/", s.handleListUsers)
		r.Get("/me", s.handleMe)
		r.Patch("/me", s.handleUpdateMe)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSuperuser)
			r.Get("/{id}", s.handleGetUser)
			r.Patch("/{id}", s.handleUpdateUser)
			r.Delete("/{id}", s.handleDeleteUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "method not allowed"})
	})
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
// The returned channel receives a serve error, if any, and is closed when the
// server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: orDefault(s.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       orDefault(s.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      orDefault(s.cfg.WriteTimeout, 15*time.Second),
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
