package registration

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/password"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/adapters/memory"
)

var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 16}

func newService(policy string) (*Service, repository.ClientRepository) {
	clients := memory.New().Clients()
	return NewService(clients, Config{
		Policy:          policy,
		Tokens:          []string{"initial-1", "initial-2"},
		BaseURL:         "https://idp.example.com/",
		ScopesSupported: []string{"openid", "profile", "email", "offline_access"},
		PasswordParams:  fastParams,
	}), clients
}

func webMetadata() Metadata {
	return Metadata{
		RedirectURIs: []string{"https://app.example.com/cb"},
		ClientName:   "App",
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Scope:        "openid profile",
	}
}

func requireCode(t *testing.T, err error, code string, status int) {
	t.Helper()
	require.Error(t, err)
	oe := oautherr.From(err)
	assert.Equal(t, code, oe.Code)
	assert.Equal(t, status, oe.Status)
}

func TestCreate_ConfidentialClient(t *testing.T) {
	ctx := context.Background()
	svc, clients := newService(PolicyBearer)

	resp, err := svc.Create(ctx, "initial-2", webMetadata())
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ClientID)
	assert.NotEmpty(t, resp.ClientSecret)
	assert.NotEmpty(t, resp.RegistrationAccessToken)
	assert.Equal(t, int64(0), resp.ClientSecretExpiresAt)
	assert.Equal(t, "https://idp.example.com/oauth/register/"+resp.ClientID, resp.RegistrationClientURI)
	assert.Equal(t, repository.AuthMethodSecretBasic, resp.TokenEndpointAuthMethod)
	assert.Equal(t, []string{"code"}, resp.ResponseTypes)

	c, err := clients.Get(ctx, resp.ClientID)
	require.NoError(t, err)
	assert.True(t, password.Verify(resp.ClientSecret, c.SecretHash))
	assert.NotEqual(t, resp.RegistrationAccessToken, c.RegistrationTokenHash)
	assert.Equal(t, []string{resp.ClientID}, c.Audience)
	assert.Equal(t, []string{"openid", "profile"}, c.Scope)
}

func TestCreate_PublicClientHasNoSecret(t *testing.T) {
	svc, clients := newService(PolicyOpen)
	md := webMetadata()
	md.TokenEndpointAuthMethod = repository.AuthMethodNone

	resp, err := svc.Create(context.Background(), "", md)
	require.NoError(t, err)
	assert.Empty(t, resp.ClientSecret)

	c, err := clients.Get(context.Background(), resp.ClientID)
	require.NoError(t, err)
	assert.Empty(t, c.SecretHash)
	assert.True(t, c.IsPublic())
}

func TestCreate_Policy(t *testing.T) {
	svc, _ := newService(PolicyBearer)

	_, err := svc.Create(context.Background(), "", webMetadata())
	requireCode(t, err, "invalid_token", http.StatusUnauthorized)

	_, err = svc.Create(context.Background(), "initial-3", webMetadata())
	requireCode(t, err, "invalid_token", http.StatusUnauthorized)
}

func TestCreate_InvalidMetadata(t *testing.T) {
	svc, _ := newService(PolicyOpen)
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*Metadata)
		code   string
	}{
		"no redirect uris":      {func(m *Metadata) { m.RedirectURIs = nil }, "invalid_redirect_uri"},
		"relative redirect uri": {func(m *Metadata) { m.RedirectURIs = []string{"/cb"} }, "invalid_redirect_uri"},
		"fragment":              {func(m *Metadata) { m.RedirectURIs = []string{"https://app.example.com/cb#x"} }, "invalid_redirect_uri"},
		"unknown grant":         {func(m *Metadata) { m.GrantTypes = []string{"device_code"} }, "invalid_client_metadata"},
		"unknown auth method":   {func(m *Metadata) { m.TokenEndpointAuthMethod = "tls_client_auth" }, "invalid_client_metadata"},
		"unsupported scope":     {func(m *Metadata) { m.Scope = "openid admin" }, "invalid_client_metadata"},
		"private key without keys": {func(m *Metadata) {
			m.TokenEndpointAuthMethod = repository.AuthMethodPrivateKey
		}, "invalid_client_metadata"},
		"public client credentials": {func(m *Metadata) {
			m.TokenEndpointAuthMethod = repository.AuthMethodNone
			m.GrantTypes = []string{"client_credentials"}
		}, "invalid_client_metadata"},
		"token without implicit": {func(m *Metadata) { m.ResponseTypes = []string{"code", "token"} }, "invalid_client_metadata"},
		"bad jwks":               {func(m *Metadata) { m.JWKS = json.RawMessage(`{"keys":"nope"}`) }, "invalid_client_metadata"},
		"quoted scope":           {func(m *Metadata) { m.Scope = `openid "email"` }, "invalid_client_metadata"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			md := webMetadata()
			tc.mutate(&md)
			_, err := svc.Create(ctx, "", md)
			requireCode(t, err, tc.code, http.StatusBadRequest)
		})
	}
}

func TestCreate_PrivateKeyJWT(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keys, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: pub, KeyID: "k1", Algorithm: "EdDSA", Use: "sig"}}})
	require.NoError(t, err)

	svc, clients := newService(PolicyOpen)
	md := webMetadata()
	md.TokenEndpointAuthMethod = repository.AuthMethodPrivateKey
	md.JWKS = keys

	resp, err := svc.Create(context.Background(), "", md)
	require.NoError(t, err)
	assert.Empty(t, resp.ClientSecret)

	c, err := clients.Get(context.Background(), resp.ClientID)
	require.NoError(t, err)
	assert.JSONEq(t, string(keys), string(c.JWKS))
}

func TestManagement(t *testing.T) {
	ctx := context.Background()
	svc, clients := newService(PolicyOpen)

	created, err := svc.Create(ctx, "", webMetadata())
	require.NoError(t, err)
	id, tok := created.ClientID, created.RegistrationAccessToken

	t.Run("read", func(t *testing.T) {
		got, err := svc.Read(ctx, id, tok)
		require.NoError(t, err)
		assert.Equal(t, "App", got.ClientName)
		assert.Empty(t, got.ClientSecret)
		assert.Empty(t, got.RegistrationAccessToken)
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := svc.Read(ctx, id, "nope")
		requireCode(t, err, "invalid_token", http.StatusUnauthorized)
		_, err = svc.Read(ctx, id, "")
		requireCode(t, err, "invalid_token", http.StatusUnauthorized)
	})

	t.Run("token bound to its client", func(t *testing.T) {
		other, err := svc.Create(ctx, "", webMetadata())
		require.NoError(t, err)
		_, err = svc.Read(ctx, other.ClientID, tok)
		requireCode(t, err, "invalid_token", http.StatusUnauthorized)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := svc.Read(ctx, "missing", tok)
		requireCode(t, err, "invalid_token", http.StatusUnauthorized)
	})

	t.Run("update keeps secret", func(t *testing.T) {
		md := webMetadata()
		md.ClientName = "Renamed"
		md.RedirectURIs = append(md.RedirectURIs, "https://app.example.com/cb2")
		got, err := svc.Update(ctx, id, tok, md)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.ClientName)
		assert.Empty(t, got.ClientSecret)

		c, err := clients.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, c.HasRedirectURI("https://app.example.com/cb2"))
		assert.True(t, password.Verify(created.ClientSecret, c.SecretHash))
	})

	t.Run("update validates", func(t *testing.T) {
		md := webMetadata()
		md.RedirectURIs = []string{"not a uri"}
		_, err := svc.Update(ctx, id, tok, md)
		require.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, id, tok))
		_, err := clients.Get(ctx, id)
		assert.True(t, repository.IsNotFound(err))

		err = svc.Delete(ctx, id, tok)
		requireCode(t, err, "invalid_token", http.StatusUnauthorized)
	})
}
