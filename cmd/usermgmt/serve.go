// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/usermgmt/internal/auth"
	"github.com/holomush/usermgmt/internal/auth/postgres"
	"github.com/holomush/usermgmt/internal/config"
	"github.com/holomush/usermgmt/internal/logging"
	"github.com/holomush/usermgmt/internal/observability"
	"github.com/holomush/usermgmt/internal/store"
	"github.com/holomush/usermgmt/internal/web"
)

// readinessTimeout bounds the database ping behind /healthz/readiness.
const readinessTimeout = 2 * time.Second

type serveOptions struct {
	migrate bool
}

// newServeCmd creates the serve subcommand.
func newServeCmd(deps *Deps) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the public HTTP API and, unless observability.addr is empty,
the metrics and health listener. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cmd, opts, deps)
		},
	}

	cmd.Flags().String("addr", ":8000", "HTTP API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("token-carrier", string(web.CarrierAny), "where clients present tokens: cookie, header or any")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

// runServeWithDeps runs the API until ctx is cancelled or a listener fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, opts *serveOptions, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	logger := logging.SetDefault("usermgmt", version, cfg.Log.Format, level)

	if err := ensureDevSecret(cfg, logger); err != nil {
		return err
	}

	logger.Info("starting usermgmt",
		"addr", cfg.HTTP.Addr,
		"carrier", cfg.Auth.Carrier,
		"hasher", cfg.Auth.Hasher)

	if opts.migrate {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, poolConfig(cfg))
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	obs := observability.NewServer(cfg.Observability.Addr, store.Readiness(pool, readinessTimeout))
	metrics := obs.Metrics()

	api, err := buildAPI(cfg, pool, metrics, logger)
	if err != nil {
		return err
	}

	apiErrCh, err := api.Start()
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "start http server").Wrap(err)
	}

	var obsErrCh <-chan error
	if cfg.Observability.Addr != "" {
		obsErrCh, err = obs.Start()
		if err != nil {
			stopAll(cfg, logger, api, nil)
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
	}

	if deps.Started != nil {
		deps.Started(api.Addr())
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-apiErrCh:
		serveErr = oops.Code("SERVE_FAILED").With("listener", "http").Wrap(err)
	case err := <-obsErrCh:
		serveErr = oops.Code("SERVE_FAILED").With("listener", "observability").Wrap(err)
	}

	stopAll(cfg, logger, api, obs)
	return serveErr
}

// buildAPI wires the auth services onto the pool and returns the unstarted
// HTTP server.
func buildAPI(cfg *config.Config, pool Pool, metrics *observability.Metrics, logger *slog.Logger) (*web.Server, error) {
	hasher, err := auth.NewPasswordHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	codec, err := auth.NewTokenCodec(cfg.TokenConfig())
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	repo := postgres.NewUserRepository(pool).WithLogger(logger)

	sessions, err := auth.NewSessionManager(repo, hasher, codec,
		auth.WithSessionLogger(logger),
		auth.WithSessionObserver(func(method string, state auth.SessionState) {
			metrics.RecordAuthAttempt(method, state.String())
		}))
	if err != nil {
		return nil, oops.Code("SERVE_FAILED").With("operation", "build session manager").Wrap(err)
	}
	registrar, err := auth.NewRegistrar(repo, hasher, auth.WithRegistrarLogger(logger))
	if err != nil {
		return nil, oops.Code("SERVE_FAILED").With("operation", "build registrar").Wrap(err)
	}
	accounts, err := auth.NewAccountManager(repo, hasher, auth.WithAccountLogger(logger))
	if err != nil {
		return nil, oops.Code("SERVE_FAILED").With("operation", "build account manager").Wrap(err)
	}

	mode, err := web.ParseCarrierMode(cfg.Auth.Carrier)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	sameSite, err := cfg.Auth.Cookie.SameSiteMode()
	if err != nil {
		return nil, err
	}

	return web.NewServer(web.Config{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}, web.Deps{
		Sessions:  sessions,
		Registrar: registrar,
		Users:     repo,
		Accounts:  accounts,
		Carrier: web.Carrier{
			Mode:     mode,
			Name:     cfg.Auth.Cookie.Name,
			Domain:   cfg.Auth.Cookie.Domain,
			Secure:   cfg.Auth.Cookie.Secure,
			SameSite: sameSite,
			TTL:      codec.TTL(),
		},
		Metrics: metrics,
		Logger:  logger,
	})
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopAll(cfg *config.Config, logger *slog.Logger, servers ...stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}
}

// ensureDevSecret generates a throwaway signing secret in dev mode when none
// is configured. Tokens signed with it die with the process.
func ensureDevSecret(cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Dev || cfg.Auth.Secret != "" {
		return nil
	}
	buf := make([]byte, config.MinSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return oops.Code("SECRET_GENERATION_FAILED").Wrap(err)
	}
	cfg.Auth.Secret = hex.EncodeToString(buf)
	logger.Warn("dev mode: generated an ephemeral signing secret")
	return nil
}

// runAutoMigration applies pending migrations before serving.
func runAutoMigration(databaseURL string, factory MigratorFactory) error {
	m, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	if err := m.Up(); err != nil {
		_ = m.Close()
		return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
	}
	if err := m.Close(); err != nil {
		slog.Warn("failed to close migrator", "error", err)
	}
	slog.Info("database migrations applied")
	return nil
}
