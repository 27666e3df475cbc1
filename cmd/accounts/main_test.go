// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/account/memstore"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/store"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// testEnv isolates a command run from the caller's configuration.
func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvSigningKey, testSigningKey)
	t.Setenv(config.EnvDatabaseURL, "")
}

// memoryDeps returns Deps whose stores persist across command runs.
func memoryDeps() *Deps {
	stores := &Stores{
		Users:   memstore.NewUserStore(),
		Refresh: memstore.NewRefreshTokenStore(),
		Revoked: memstore.NewRevokedAccessTokenStore(time.Now),
		Close:   func() error { return nil },
	}
	return &Deps{
		StoresFactory: func(context.Context, *config.Config) (*Stores, error) {
			return stores, nil
		},
	}
}

func execute(t *testing.T, deps *Deps, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level=error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	out, err := execute(t, nil, "", "--help")
	require.NoError(t, err)

	for _, want := range []string{"serve", "migrate", "account", "config", "--config", "--env-file", "--storage-driver"} {
		assert.Contains(t, out, want)
	}
}

func TestAccountCommands_Lifecycle(t *testing.T) {
	testEnv(t)
	deps := memoryDeps()
	const password = "s3cret-pass!"

	out, err := execute(t, deps, "", "account", "register",
		"--storage-driver=memory",
		"--username=playerone1", "--password="+password, "--name=Player One", "--email=one@example.com")
	require.NoError(t, err)
	var profile account.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &profile))
	assert.Equal(t, "playerone1", profile.Username)
	assert.Equal(t, account.StatusNormal, profile.Status)

	out, err = execute(t, deps, password+"\n", "account", "login", "--storage-driver=memory", "--username=playerone1")
	require.NoError(t, err)
	var sess sessionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &sess))
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.Profile.RefreshToken)

	out, err = execute(t, deps, "", "account", "authenticate", "--storage-driver=memory", "--access-token="+sess.AccessToken)
	require.NoError(t, err)
	assert.Contains(t, out, `"username": "playerone1"`)

	out, err = execute(t, deps, "", "account", "refresh", "--storage-driver=memory", "--refresh-token="+sess.Profile.RefreshToken)
	require.NoError(t, err)
	var refreshed sessionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &refreshed))
	assert.NotEqual(t, sess.Profile.RefreshToken, refreshed.Profile.RefreshToken)

	_, err = execute(t, deps, "", "account", "logout", "--storage-driver=memory", "--username=playerone1", "--access-token="+refreshed.AccessToken)
	require.NoError(t, err)

	_, err = execute(t, deps, "", "account", "authenticate", "--storage-driver=memory", "--access-token="+refreshed.AccessToken)
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err))

	_, err = execute(t, deps, "", "account", "withdraw", "--storage-driver=memory", "--username=playerone1", "--password="+password)
	require.NoError(t, err)

	_, err = execute(t, deps, "", "account", "login", "--storage-driver=memory", "--username=playerone1", "--password="+password)
	assert.Equal(t, account.KindWithdrawn, account.KindOf(err))
}

func TestAccountCommands_LogoutRejectsAnotherAccountsToken(t *testing.T) {
	testEnv(t)
	deps := memoryDeps()
	const password = "s3cret-pass!"

	for _, name := range []string{"playerone1", "playertwo2"} {
		_, err := execute(t, deps, "", "account", "register", "--storage-driver=memory",
			"--username="+name, "--password="+password, "--name=Player")
		require.NoError(t, err)
	}
	out, err := execute(t, deps, "", "account", "login", "--storage-driver=memory",
		"--username=playerone1", "--password="+password)
	require.NoError(t, err)
	var sess sessionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &sess))

	_, err = execute(t, deps, "", "account", "logout", "--storage-driver=memory",
		"--username=playertwo2", "--access-token="+sess.AccessToken)
	require.Error(t, err)
	assert.Equal(t, account.KindInvalidToken, account.KindOf(err))

	_, err = execute(t, deps, "", "account", "authenticate", "--storage-driver=memory", "--access-token="+sess.AccessToken)
	require.NoError(t, err, "the owner's session must survive")
}

func TestAccountCommands_RegisterValidation(t *testing.T) {
	testEnv(t)
	deps := memoryDeps()

	_, err := execute(t, deps, "", "account", "register", "--storage-driver=memory",
		"--username=short", "--password=s3cret-pass!", "--name=Player")
	assert.Equal(t, account.KindInvalidFormat, account.KindOf(err))
	assert.Equal(t, "username", account.FieldOf(err))
}

func TestAccountCommands_MissingSigningKey(t *testing.T) {
	testEnv(t)
	t.Setenv(config.EnvSigningKey, "")

	_, err := execute(t, memoryDeps(), "", "account", "login", "--storage-driver=memory", "--username=playerone1", "--password=x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_key")
}

func TestPasswordFlagOrPrompt_ReadsStdinLine(t *testing.T) {
	cmd := newLoginCmd(&Deps{})
	cmd.SetIn(strings.NewReader("from-stdin\r\nignored\n"))

	got, err := passwordFlagOrPrompt(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", got)
}

func TestPasswordFlagOrPrompt_FlagWins(t *testing.T) {
	cmd := newLoginCmd(&Deps{})
	require.NoError(t, cmd.Flags().Set("password", "from-flag"))
	cmd.SetIn(strings.NewReader("from-stdin\n"))

	got, err := passwordFlagOrPrompt(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", got)
}

type fakeMigrator struct {
	mu     sync.Mutex
	calls  []string
	status store.MigrationStatus
}

func (m *fakeMigrator) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *fakeMigrator) Up() error   { m.record("up"); return nil }
func (m *fakeMigrator) Down() error { m.record("down"); return nil }
func (m *fakeMigrator) Steps(n int) error {
	m.record("steps:" + strings.Repeat("-", max(0, -n)))
	return nil
}
func (m *fakeMigrator) Force(int) error { m.record("force"); return nil }
func (m *fakeMigrator) Status() (store.MigrationStatus, error) {
	m.record("status")
	return m.status, nil
}
func (m *fakeMigrator) Close() error { m.record("close"); return nil }

func TestMigrateCommands(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantOut   string
	}{
		{name: "up", args: []string{"migrate", "up"}, wantCalls: []string{"up", "close"}, wantOut: "applied"},
		{name: "down one step", args: []string{"migrate", "down"}, wantCalls: []string{"steps:-", "close"}, wantOut: "rolled back"},
		{name: "down all", args: []string{"migrate", "down", "--all"}, wantCalls: []string{"down", "close"}, wantOut: "rolled back"},
		{name: "force", args: []string{"migrate", "force", "2"}, wantCalls: []string{"force", "close"}, wantOut: "forced to 2"},
		{name: "status", args: []string{"migrate", "status"}, wantCalls: []string{"status", "close"}, wantOut: "Pending migrations: 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testEnv(t)
			t.Setenv(config.EnvDatabaseURL, "postgres://localhost/accounts")
			m := &fakeMigrator{status: store.MigrationStatus{Version: 1, Pending: []uint{2, 3}}}
			var gotURL string
			deps := &Deps{MigratorFactory: func(url string) (Migrator, error) {
				gotURL = url
				return m, nil
			}}

			out, err := execute(t, deps, "", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, "postgres://localhost/accounts", gotURL)
			assert.Equal(t, tt.wantCalls, m.calls)
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestMigrateForce_InvalidVersion(t *testing.T) {
	testEnv(t)
	t.Setenv(config.EnvDatabaseURL, "postgres://localhost/accounts")

	_, err := execute(t, &Deps{}, "", "migrate", "force", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abc")
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	testEnv(t)

	_, err := execute(t, &Deps{}, "", "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestConfigCommands(t *testing.T) {
	testEnv(t)

	out, err := execute(t, nil, "", "config", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, config.SchemaID)

	out, err = execute(t, nil, "", "config", "validate", "--storage-driver=memory")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}
