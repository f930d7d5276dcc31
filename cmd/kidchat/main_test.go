package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"kidchat/config"
	"kidchat/internal/progression"
	"kidchat/internal/stubapi"
	"kidchat/internal/stubapi/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type cli struct {
	t          *testing.T
	configPath string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	backend, err := state.NewBackend(config.DefaultStubConfig(), bcrypt.MinCost)
	require.NoError(t, err)
	server := httptest.NewServer(stubapi.NewRouter(stubapi.RouterConfig{
		Backend: backend,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	cfg := map[string]any{
		"api":     map[string]any{"base_url": server.URL},
		"storage": map[string]any{"driver": "sqlite", "path": filepath.Join(dir, "kidchat.db")},
		"session": map[string]any{"startup_delay_ms": 0},
		"logging": map[string]any{"format": "text", "level": "error"},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return &cli{t: t, configPath: path}
}

// exec runs one CLI invocation; state carries over through the sqlite file
func (c *cli) exec(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-config", c.configPath}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func TestCLI_ChildFlow(t *testing.T) {
	c := newCLI(t)

	out, err := c.exec("status")
	require.NoError(t, err)
	assert.Equal(t, "route: login\n", out)

	out, err = c.exec("login", "-user", "kim", "-password", "kim-pass")
	require.NoError(t, err)
	assert.Contains(t, out, "route: child_home")
	assert.Contains(t, out, "music: playing")

	out, err = c.exec("status")
	require.NoError(t, err)
	assert.Contains(t, out, "role: child")
	assert.Contains(t, out, "child: 5")

	out, err = c.exec("select-level", "-game", "spelling", "-level", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "game session: game_")
	assert.Contains(t, out, "game: spelling")

	out, err = c.exec("current-game")
	require.NoError(t, err)
	assert.Contains(t, out, "game: spelling")

	out, err = c.exec("select-level", "-level", "3")
	assert.ErrorIs(t, err, progression.ErrLevelLocked)
	assert.Equal(t, "locked: Level 3 locked\n", out)

	out, err = c.exec("progress", "-game", "mystery")
	require.NoError(t, err)
	assert.Contains(t, out, "current level: 1")

	out, err = c.exec("logout")
	require.NoError(t, err)
	assert.Equal(t, "logged out\n", out)

	out, err = c.exec("status")
	require.NoError(t, err)
	assert.Equal(t, "route: login\n", out)
}

func TestCLI_ParentFlow(t *testing.T) {
	c := newCLI(t)

	out, err := c.exec("login", "-role", "parent", "-user", "parent@example.com", "-password", "parent-pass")
	require.NoError(t, err)
	assert.Equal(t, "route: parent_dashboard\n", out)

	out, err = c.exec("status")
	require.NoError(t, err)
	assert.Contains(t, out, "child 5: ")
	assert.Contains(t, out, "child 6: ")

	_, err = c.exec("set-child", "-child", "6")
	require.NoError(t, err)
	out, err = c.exec("start", "-game", "fruits")
	require.NoError(t, err)
	assert.Contains(t, out, "child: 6")

	_, err = c.exec("set-child", "-child", "42")
	assert.Error(t, err)

	_, err = c.exec("change-password", "-old", "parent-pass", "-new", "fresh-pass")
	require.NoError(t, err)
	_, err = c.exec("logout")
	require.NoError(t, err)

	_, err = c.exec("login", "-role", "parent", "-user", "parent@example.com", "-password", "fresh-pass")
	assert.NoError(t, err)
}

func TestCLI_BlockedChild(t *testing.T) {
	c := newCLI(t)

	out, err := c.exec("login", "-user", "lee", "-password", "lee-pass")
	require.Error(t, err)
	assert.Contains(t, out, "blocked")

	out, err = c.exec("status")
	require.NoError(t, err)
	assert.Equal(t, "route: login\n", out)
}

func TestCLI_PasswordReset(t *testing.T) {
	c := newCLI(t)

	out, err := c.exec("forgot-password", "-user", "kim")
	require.NoError(t, err)
	assert.Equal(t, "reset code sent\n", out)

	_, err = c.exec("verify-reset", "-otp", "000000", "-password", "kim-new")
	assert.Error(t, err)

	_, err = c.exec("verify-reset", "-otp", "123456", "-password", "kim-new")
	require.NoError(t, err)

	_, err = c.exec("login", "-user", "kim", "-password", "kim-new")
	assert.NoError(t, err)
}

func TestCLI_Music(t *testing.T) {
	c := newCLI(t)

	out, err := c.exec("music", "toggle")
	require.NoError(t, err)
	assert.Equal(t, "music: playing\n", out)

	_, err = c.exec("music", "rewind")
	assert.ErrorIs(t, err, errUsage)
}

func TestCLI_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), nil, &stdout, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), "select-level")

	err = run(context.Background(), []string{"dance"}, &stdout, &stderr)
	assert.ErrorIs(t, err, errUsage)

	c := newCLI(t)
	_, err = c.exec("login", "-user", "kim")
	assert.ErrorIs(t, err, errUsage)
	_, err = c.exec("select-level", "-game", "chess")
	assert.Error(t, err)
}
