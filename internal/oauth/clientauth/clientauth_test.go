package clientauth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/password"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/adapters/memory"
)

const tokenEndpoint = "https://idp.example.com/oauth/token"

var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 16}

type fixture struct {
	auth    Authenticator
	clients repository.ClientRepository
	priv    ed25519.PrivateKey
}

func jwksJSON(t *testing.T, pub ed25519.PublicKey, kid string) []byte {
	t.Helper()
	b, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: pub, KeyID: kid, Algorithm: "EdDSA", Use: "sig"},
	}})
	require.NoError(t, err)
	return b
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn := memory.New()

	hash, err := password.Hash(fastParams, "s3cret")
	require.NoError(t, err)
	require.NoError(t, conn.Clients().Create(ctx, repository.Client{
		ClientID:                "web",
		SecretHash:              hash,
		TokenEndpointAuthMethod: repository.AuthMethodSecretBasic,
	}))
	require.NoError(t, conn.Clients().Create(ctx, repository.Client{
		ClientID:                "spa",
		TokenEndpointAuthMethod: repository.AuthMethodNone,
	}))

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	require.NoError(t, conn.Clients().Create(ctx, repository.Client{
		ClientID:                "svc",
		TokenEndpointAuthMethod: repository.AuthMethodPrivateKey,
		JWKS:                    jwksJSON(t, pub, "k1"),
	}))

	verifier := &AssertionVerifier{
		Audiences: []string{tokenEndpoint, "https://idp.example.com"},
		JWKS:      NewJWKSCache(time.Minute, nil),
		Replay:    cache.NewMemory(""),
		JTITTL:    time.Hour,
	}
	return &fixture{
		auth:    NewAuthenticator(Deps{Clients: conn.Clients(), Assertions: verifier}),
		clients: conn.Clients(),
		priv:    priv,
	}
}

func sign(t *testing.T, priv ed25519.PrivateKey, kid string, claims jwtv5.MapClaims) string {
	t.Helper()
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	if kid != "" {
		tk.Header["kid"] = kid
	}
	s, err := tk.SignedString(priv)
	require.NoError(t, err)
	return s
}

func assertionClaims(jti string) jwtv5.MapClaims {
	now := time.Now()
	return jwtv5.MapClaims{
		"iss": "svc",
		"sub": "svc",
		"aud": tokenEndpoint,
		"jti": jti,
		"iat": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
	}
}

func assertInvalidClient(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidClient), "got %v", err)
}

func TestAuthenticate_Secret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.auth.Authenticate(ctx, Credentials{ClientID: "web", Secret: "s3cret", Source: SourceBasic})
	require.NoError(t, err)
	assert.Equal(t, "web", c.ClientID)

	_, err = f.auth.Authenticate(ctx, Credentials{ClientID: "web", Secret: "nope", Source: SourceBasic})
	assertInvalidClient(t, err)

	_, err = f.auth.Authenticate(ctx, Credentials{ClientID: "ghost", Secret: "s3cret", Source: SourcePost})
	assertInvalidClient(t, err)
}

func TestAuthenticate_None(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Authenticate(ctx, Credentials{ClientID: "spa", Source: SourceNone})
	require.NoError(t, err)

	// un client confidencial no puede omitir el secret
	_, err = f.auth.Authenticate(ctx, Credentials{ClientID: "web", Source: SourceNone})
	assertInvalidClient(t, err)

	// un client público no tiene secret que verificar
	_, err = f.auth.Authenticate(ctx, Credentials{ClientID: "spa", Secret: "x", Source: SourcePost})
	assertInvalidClient(t, err)
}

func TestAuthenticate_AssertionAndReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creds := Credentials{
		Source:        SourceAssertion,
		AssertionType: AssertionType,
		Assertion:     sign(t, f.priv, "k1", assertionClaims("jti-1")),
	}

	c, err := f.auth.Authenticate(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "svc", c.ClientID)

	_, err = f.auth.Authenticate(ctx, creds)
	assertInvalidClient(t, err)
	var oe *oautherr.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "Invalid claim 'jti'", oe.Description)
}

func TestAuthenticate_AssertionRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	wrongAud := assertionClaims("a")
	wrongAud["aud"] = "https://elsewhere.example.com"
	noJTI := assertionClaims("")
	expired := assertionClaims("b")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	otherSub := assertionClaims("c")
	otherSub["sub"] = "someone"

	cases := map[string]string{
		"wrong audience": sign(t, f.priv, "k1", wrongAud),
		"missing jti":    sign(t, f.priv, "k1", noJTI),
		"expired":        sign(t, f.priv, "k1", expired),
		"sub mismatch":   sign(t, f.priv, "k1", otherSub),
		"unknown kid":    sign(t, f.priv, "k2", assertionClaims("d")),
		"bad signature":  sign(t, otherPriv, "k1", assertionClaims("e")),
	}
	for name, assertion := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.auth.Authenticate(ctx, Credentials{
				Source: SourceAssertion, AssertionType: AssertionType, Assertion: assertion,
			})
			assertInvalidClient(t, err)
		})
	}
}

func TestAuthenticate_AssertionDisabledWithoutIssuer(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthenticator(Deps{Clients: f.clients})

	_, err := auth.Authenticate(context.Background(), Credentials{
		Source:        SourceAssertion,
		AssertionType: AssertionType,
		Assertion:     sign(t, f.priv, "k1", assertionClaims("x")),
	})
	assertInvalidClient(t, err)
}

func TestJWKSCache_FetchesOnce(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	body := jwksJSON(t, pub, "remote")

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := NewJWKSCache(time.Minute, srv.Client())
	for i := 0; i < 3; i++ {
		set, err := c.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		_, ok := set.LookupKeyID("remote")
		assert.True(t, ok)
	}
	assert.EqualValues(t, 1, hits.Load())

	c.Invalidate(srv.URL)
	_, err = c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestJWKSCache_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewJWKSCache(time.Minute, srv.Client()).Get(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestFromRequest(t *testing.T) {
	form := url.Values{"grant_type": {"client_credentials"}, "client_secret": {"x"}}
	r := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.SetBasicAuth("web", "s3cret")
	_, err := FromRequest(r)
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidRequest))

	r = httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader("grant_type=client_credentials"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.SetBasicAuth("my%3Aclient", "p%40ss")
	creds, err := FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, Credentials{ClientID: "my:client", Secret: "p@ss", Source: SourceBasic}, creds)

	form = url.Values{"client_id": {"spa"}}
	r = httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	creds, err = FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, SourceNone, creds.Source)
}
