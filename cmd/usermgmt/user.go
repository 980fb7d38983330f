// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/usermgmt/internal/auth"
	"github.com/holomush/usermgmt/internal/auth/postgres"
)

type userCreateOptions struct {
	email         string
	username      string
	fullName      string
	password      string
	passwordStdin bool
	superuser     bool
}

// newUserCmd creates the user subcommand.
func newUserCmd(pools PoolFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts directly in the database",
	}
	cmd.AddCommand(newUserCreateCmd(pools))
	return cmd
}

func newUserCreateCmd(pools PoolFactory) *cobra.Command {
	opts := &userCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user without going through the HTTP API",
		Long: `Create an active, verified user. Use --superuser to bootstrap an
administrator who can read other users through GET /users/{id}.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd, opts, pools)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&opts.username, "username", "", "username (required)")
	cmd.Flags().StringVar(&opts.fullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&opts.password, "password", "", "password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	cmd.Flags().BoolVar(&opts.superuser, "superuser", false, "grant superuser privileges")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	return cmd
}

func runUserCreate(cmd *cobra.Command, opts *userCreateOptions, pools PoolFactory) error {
	password := opts.password
	if opts.passwordStdin {
		var err error
		if password, err = readPassword(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := requireDatabaseURL(cfg); err != nil {
		return err
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	ctx := cmd.Context()
	pool, err := pools(ctx, poolConfig(cfg))
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	registrar, err := auth.NewRegistrar(postgres.NewUserRepository(pool), hasher)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").Wrap(err)
	}

	reg := auth.Registration{
		Email:    opts.email,
		Username: opts.username,
		Password: password,
	}
	if opts.fullName != "" {
		reg.FullName = &opts.fullName
	}

	register := registrar.Register
	if opts.superuser {
		register = registrar.RegisterSuperuser
	}
	user, err := register(ctx, reg)
	if err != nil {
		return err
	}

	kind := "user"
	if user.IsSuperuser {
		kind = "superuser"
	}
	cmd.Printf("Created %s %s (id %d)\n", kind, user.Email, user.ID)
	return nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
