package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
cache:
  driver: memory
registration:
  policy: open
log:
  level: error
`), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "cleanup", "keys", "client", "user"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}

func TestCleanupCommand(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted codes=0 tokens=0")
}

func TestKeysRotateCommand(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "keys", "rotate", "--alg", "RS256")
	require.NoError(t, err)
	assert.Contains(t, out, "alg=RS256")
}

func TestClientCreateCommand(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "client", "create",
		"--name", "demo", "--redirect-uri", "https://app.example.com/cb")
	require.NoError(t, err)
	assert.Contains(t, out, `"client_id"`)
	assert.Contains(t, out, `"client_secret"`)
}

func TestMigrateRequiresPostgres(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "migrate", "status")
	assert.ErrorContains(t, err, "storage.driver=postgres")
}

func TestUserCreateRequiresPassword(t *testing.T) {
	t.Setenv("HELLOJOHN_USER_PASSWORD", "")
	_, err := run(t, "--config", writeConfig(t), "user", "create", "--username", "ada")
	assert.Error(t, err)
}
