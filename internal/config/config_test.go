package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, 10*time.Minute, c.OAuth.CodeTTL)
	assert.Equal(t, 50*time.Second, c.OAuth.JWKSCacheTTL)
	assert.Equal(t, time.Hour, c.OAuth.JTITTL)
	assert.Equal(t, "sid", c.Session.CookieName)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  issuer: https://id.example.com
oauth:
  code_ttl: 2m
  require_nonce: true
  claim_templates:
    name: "{{.given_name}}"
registration:
  policy: open
`), 0o600))

	t.Setenv("OAUTH_CODE_TTL", "90s")
	t.Setenv("REGISTRATION_TOKENS", "a, b,,c")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://id.example.com", c.Server.Issuer)
	assert.Equal(t, 90*time.Second, c.OAuth.CodeTTL)
	assert.True(t, c.OAuth.RequireNonce)
	assert.Equal(t, "{{.given_name}}", c.OAuth.ClaimTemplates["name"])
	assert.Equal(t, []string{"a", "b", "c"}, c.Registration.Tokens)
	require.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Error(t, c.Validate(), "bearer policy without tokens")

	c.Registration.Policy = "open"
	require.NoError(t, c.Validate())

	c.Storage.Driver = "postgres"
	assert.Error(t, c.Validate())
	c.Storage.DSN = "postgres://localhost/hj"
	require.NoError(t, c.Validate())

	c.Server.Issuer = "not a url"
	assert.Error(t, c.Validate())
}
