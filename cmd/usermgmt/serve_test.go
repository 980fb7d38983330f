// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/usermgmt/internal/config"
	"github.com/holomush/usermgmt/internal/store"
	"github.com/holomush/usermgmt/pkg/errutil"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func serveEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("USERMGMT_DATABASE__URL", "postgres://env/db")
	t.Setenv("USERMGMT_AUTH__SECRET", testSecret)
	t.Setenv("USERMGMT_LOG__LEVEL", "error")
}

func TestServe_StartsAndStopsOnCancel(t *testing.T) {
	restoreDefaultLogger(t)
	serveEnv(t)

	mock, deps, poolCfg := mockPoolDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var body map[string]string
	var status int
	deps.Started = func(addr string) {
		defer cancel()
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + addr + "/test")
		if err != nil {
			return
		}
		defer func() { _ = resp.Body.Close() }()
		status = resp.StatusCode
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &body)
	}

	configFile = ""
	cmd := newRootCmd(deps)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--metrics-addr="})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	require.NoError(t, cmd.ExecuteContext(ctx))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["message"])
	assert.Equal(t, "postgres://env/db", poolCfg.URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServe_RejectsShortSecret(t *testing.T) {
	restoreDefaultLogger(t)
	serveEnv(t)
	t.Setenv("USERMGMT_AUTH__SECRET", "short")

	_, deps, _ := mockPoolDeps(t)
	called := false
	deps.PoolFactory = func(context.Context, store.PoolConfig) (Pool, error) {
		called = true
		return nil, errors.New("unreachable")
	}

	_, err := execute(t, deps, "serve", "--addr", "127.0.0.1:0", "--metrics-addr=")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.False(t, called, "pool must not be opened with invalid config")
}

func TestServe_ConnectFailure(t *testing.T) {
	restoreDefaultLogger(t)
	serveEnv(t)

	deps := &Deps{
		PoolFactory: func(context.Context, store.PoolConfig) (Pool, error) {
			return nil, errors.New("connection refused")
		},
	}
	_, err := execute(t, deps, "serve", "--addr", "127.0.0.1:0", "--metrics-addr=")
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}

func TestServe_MigratesBeforeConnecting(t *testing.T) {
	restoreDefaultLogger(t)
	serveEnv(t)

	m := &fakeMigrator{upErr: errors.New("dirty schema")}
	var url string
	deps := migratorDeps(m, &url)
	deps.PoolFactory = func(context.Context, store.PoolConfig) (Pool, error) {
		t.Fatal("pool opened after failed migration")
		return nil, nil
	}

	_, err := execute(t, deps, "serve", "--migrate", "--addr", "127.0.0.1:0", "--metrics-addr=")
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	assert.Equal(t, "postgres://env/db", url)
	assert.Equal(t, []string{"up", "close"}, m.calls)
}

func TestEnsureDevSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("generates a secret in dev mode", func(t *testing.T) {
		cfg := config.Default()
		cfg.Dev = true
		cfg.Database.URL = "postgres://x/db"
		require.NoError(t, ensureDevSecret(&cfg, logger))
		assert.Len(t, cfg.Auth.Secret, 2*config.MinSecretLength)
		require.NoError(t, cfg.Validate())
	})

	t.Run("keeps a configured secret", func(t *testing.T) {
		cfg := config.Default()
		cfg.Dev = true
		cfg.Auth.Secret = "configured"
		require.NoError(t, ensureDevSecret(&cfg, logger))
		assert.Equal(t, "configured", cfg.Auth.Secret)
	})

	t.Run("does nothing outside dev mode", func(t *testing.T) {
		cfg := config.Default()
		require.NoError(t, ensureDevSecret(&cfg, logger))
		assert.Empty(t, cfg.Auth.Secret)
	})
}

func TestRunAutoMigration(t *testing.T) {
	t.Run("applies and closes", func(t *testing.T) {
		m := &fakeMigrator{}
		var url string
		deps := migratorDeps(m, &url)
		require.NoError(t, runAutoMigration("postgres://x/db", deps.MigratorFactory))
		assert.Equal(t, []string{"up", "close"}, m.calls)
	})

	t.Run("open failure", func(t *testing.T) {
		err := runAutoMigration("postgres://x/db", func(string) (Migrator, error) {
			return nil, errors.New("bad url")
		})
		errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "open migrator")
	})
}
