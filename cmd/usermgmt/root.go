// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/usermgmt/internal/auth/postgres"
	"github.com/holomush/usermgmt/internal/config"
	"github.com/holomush/usermgmt/internal/store"
	"github.com/holomush/usermgmt/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the usermgmt CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

// newRootCmd builds the command tree over deps. nil fields take defaults.
func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "usermgmt",
		Short: "usermgmt - user registration and token authentication",
		Long: `usermgmt registers users, verifies their passwords and issues
signed session tokens over HTTP, backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/usermgmt/config.yaml)")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("log-format", "json", "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("dev", false, "development mode: allow a short or generated signing secret")

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps.MigratorFactory))
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(newUserCmd(deps.PoolFactory))

	return cmd
}

// loadConfig layers the config file, environment and the flags parsed for cmd.
// Without --config the XDG default file is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.FindConfigFile()
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrap(err)
		}
		path = found
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}
	return cfg, nil
}

func requireDatabaseURL(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.url is required (set --database-url or USERMGMT_DATABASE__URL)")
	}
	return nil
}

// Pool is the subset of *pgxpool.Pool the commands use.
type Pool interface {
	postgres.TxBeginner
	store.Pinger
	Close()
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory PoolFactory

	// MigratorFactory opens a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory MigratorFactory

	// Started is called by serve with the bound API address once it listens.
	Started func(addr string)
}

func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = connectPool
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = newStoreMigrator
	}
	return out
}

// PoolFactory opens the process-wide database pool.
type PoolFactory func(ctx context.Context, cfg store.PoolConfig) (Pool, error)

func connectPool(ctx context.Context, cfg store.PoolConfig) (Pool, error) {
	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func poolConfig(cfg *config.Config) store.PoolConfig {
	return store.PoolConfig{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		ConnectRetries: 5,
	}
}
