package grant

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	jwtx "github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/claims"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/consent"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/password"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/adapters/memory"
)

const (
	issuer      = "https://idp.example.com"
	redirectURI = "https://app.example.com/cb"
)

var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 16}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeUsers struct{ repo repository.UserRepository }

func (f fakeUsers) Authenticate(ctx context.Context, username, pw string) (*repository.User, error) {
	u, err := f.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if pw != "correct horse" {
		return nil, errors.New("bad password")
	}
	return u, nil
}

type env struct {
	deps       *Deps
	registry   *Registry
	authorizer *Authorizer
	conn       *memory.Conn
	clk        *clock
	clientKey  ed25519.PrivateKey
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	conn := memory.New()
	clk := &clock{t: time.Now()}
	kv := cache.NewMemory("")

	ks := jwtx.NewKeystore(conn.Keys())
	require.NoError(t, ks.EnsureBootstrap(ctx, jwtx.AlgEdDSA))
	builder, err := claims.NewBuilder(nil)
	require.NoError(t, err)

	secret, err := password.Hash(fastParams, "web-secret")
	require.NoError(t, err)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	jwks, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: pub, KeyID: "svc-1", Algorithm: "EdDSA", Use: "sig"}}})
	require.NoError(t, err)

	for _, c := range []repository.Client{
		{
			ClientID:                "web",
			SecretHash:              secret,
			TokenEndpointAuthMethod: repository.AuthMethodSecretBasic,
			RedirectURIs:            []string{redirectURI},
			GrantTypes:              []string{TypeAuthorizationCode, TypeRefreshToken, TypeClientCredentials, TypePassword},
			ResponseTypes:           []string{"code", "code id_token", "id_token token"},
			Scope:                   []string{"openid", "profile", "email", "offline_access"},
		},
		{
			ClientID:                "spa",
			TokenEndpointAuthMethod: repository.AuthMethodNone,
			RedirectURIs:            []string{redirectURI},
			GrantTypes:              []string{TypeAuthorizationCode, TypeClientCredentials},
			ResponseTypes:           []string{"code"},
			Scope:                   []string{"openid"},
			Preconsent:              true,
		},
		{
			ClientID:                "svc",
			TokenEndpointAuthMethod: repository.AuthMethodPrivateKey,
			JWKS:                    jwks,
			GrantTypes:              []string{TypeJWTBearer},
			Scope:                   []string{"openid", "api"},
		},
	} {
		require.NoError(t, conn.Clients().Create(ctx, c))
	}
	require.NoError(t, conn.Users().Create(ctx, repository.User{
		ID: "u1", Username: "ada", Email: "ada@example.com",
		Profile: map[string]string{"given_name": "Ada"},
	}))

	tm := tokens.NewManager(tokens.Deps{
		Tokens: conn.Tokens(), Codes: conn.Codes(), Users: conn.Users(),
		Config: tokens.Config{Issuer: issuer, AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		Now:    clk.Now,
	})
	assertions := &clientauth.AssertionVerifier{
		Audiences: []string{issuer + "/oauth/token", issuer},
		JWKS:      clientauth.NewJWKSCache(time.Minute, nil),
		Replay:    kv,
		JTITTL:    time.Hour,
		Now:       clk.Now,
	}
	d := &Deps{
		Clients:    conn.Clients(),
		Codes:      conn.Codes(),
		Users:      conn.Users(),
		Tokens:     tm,
		Consents:   consent.NewLedger(consent.Deps{Consents: conn.Consents(), Tokens: conn.Tokens(), Now: clk.Now}),
		ClientAuth: clientauth.NewAuthenticator(clientauth.Deps{Clients: conn.Clients(), Assertions: assertions}),
		Assertions: assertions,
		UserAuth:   fakeUsers{conn.Users()},
		Claims:     builder,
		Signer:     jwtx.NewIssuer(issuer, ks),
		Cache:      kv,
		Config: Config{
			Issuer:     issuer,
			CodeTTL:    10 * time.Minute,
			IDTokenTTL: time.Hour,
			LoginURL:   "/login",
			ConsentURL: "/consent",
		},
		Now: clk.Now,
	}
	return &env{
		deps:       d,
		registry:   NewDefaultRegistry(d),
		authorizer: NewAuthorizer(d),
		conn:       conn,
		clk:        clk,
		clientKey:  priv,
	}
}

var webCreds = clientauth.Credentials{ClientID: "web", Secret: "web-secret", Source: clientauth.SourceBasic}

func subject() *Subject { return &Subject{UserID: "u1", AuthTime: time.Now().Add(-time.Minute)} }

func redirectParams(t *testing.T, res *AuthorizeResult) url.Values {
	t.Helper()
	require.Equal(t, ResultRedirect, res.Kind)
	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	if u.Fragment != "" {
		v, err := url.ParseQuery(u.Fragment)
		require.NoError(t, err)
		return v
	}
	return u.Query()
}

// authorizeCode recorre authorize con consent previo y devuelve el código.
func (e *env) authorizeCode(t *testing.T, clientID string, extra func(*AuthorizeRequest)) string {
	t.Helper()
	ctx := context.Background()
	_, err := e.deps.Consents.Accept(ctx, "u1", clientID, []string{"openid", "profile", "email", "offline_access"})
	require.NoError(t, err)
	req := AuthorizeRequest{
		ClientID: clientID, RedirectURI: redirectURI, ResponseType: "code",
		Scope: "openid email", State: "st", Nonce: "n-1",
	}
	if extra != nil {
		extra(&req)
	}
	res, err := e.authorizer.Authorize(ctx, req, subject())
	require.NoError(t, err)
	p := redirectParams(t, res)
	require.Equal(t, "st", p.Get("state"))
	require.NotEmpty(t, p.Get("code"), res.RedirectURL)
	return p.Get("code")
}

func TestAuthorizationCode_SingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	code := e.authorizeCode(t, "web", nil)

	req := &TokenRequest{GrantType: TypeAuthorizationCode, Code: code, RedirectURI: redirectURI, Credentials: webCreds}
	resp, err := e.registry.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "openid email", resp.Scope)
	require.NotEmpty(t, resp.IDToken)

	c, err := e.deps.Signer.Parse(ctx, resp.IDToken, jwtx.ParseOptions{Audience: "web"})
	require.NoError(t, err)
	assert.Equal(t, "u1", c["sub"])
	assert.Equal(t, "n-1", c["nonce"])
	assert.Equal(t, "ada@example.com", c["email"])
	assert.NotEmpty(t, c["at_hash"])

	_, err = e.registry.Handle(ctx, req)
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant), "got %v", err)
}

func TestAuthorizationCode_PKCE(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	verifier := oauth2.GenerateVerifier()

	code := e.authorizeCode(t, "spa", func(r *AuthorizeRequest) {
		r.CodeChallenge = oauth2.S256ChallengeFromVerifier(verifier)
		r.CodeChallengeMethod = "S256"
	})
	spa := clientauth.Credentials{ClientID: "spa", Source: clientauth.SourceNone}

	_, err := e.registry.Handle(ctx, &TokenRequest{
		GrantType: TypeAuthorizationCode, Code: code, RedirectURI: redirectURI,
		CodeVerifier: oauth2.GenerateVerifier(), Credentials: spa,
	})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant))

	code = e.authorizeCode(t, "spa", func(r *AuthorizeRequest) {
		r.CodeChallenge = oauth2.S256ChallengeFromVerifier(verifier)
		r.CodeChallengeMethod = "S256"
	})
	resp, err := e.registry.Handle(ctx, &TokenRequest{
		GrantType: TypeAuthorizationCode, Code: code, RedirectURI: redirectURI,
		CodeVerifier: verifier, Credentials: spa,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.RefreshToken)

	code = e.authorizeCode(t, "spa", func(r *AuthorizeRequest) {
		r.CodeChallenge = oauth2.S256ChallengeFromVerifier(verifier)
		r.CodeChallengeMethod = "S256"
	})
	_, err = e.registry.Handle(ctx, &TokenRequest{
		GrantType: TypeAuthorizationCode, Code: code, RedirectURI: redirectURI, Credentials: spa,
	})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant), "missing verifier")
}

func TestAuthorizationCode_Expired(t *testing.T) {
	e := newEnv(t)
	code := e.authorizeCode(t, "web", nil)
	e.clk.Advance(11 * time.Minute)

	_, err := e.registry.Handle(context.Background(), &TokenRequest{
		GrantType: TypeAuthorizationCode, Code: code, RedirectURI: redirectURI, Credentials: webCreds,
	})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant))
}

func TestAuthorizationCode_RedirectMismatch(t *testing.T) {
	e := newEnv(t)
	code := e.authorizeCode(t, "web", nil)

	_, err := e.registry.Handle(context.Background(), &TokenRequest{
		GrantType: TypeAuthorizationCode, Code: code, RedirectURI: "https://evil.example.com/cb", Credentials: webCreds,
	})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant))
}

func TestRefreshToken_RotationAndScope(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	code := e.authorizeCode(t, "web", nil)
	first, err := e.registry.Handle(ctx, &TokenRequest{GrantType: TypeAuthorizationCode, Code: code, RedirectURI: redirectURI, Credentials: webCreds})
	require.NoError(t, err)

	_, err = e.registry.Handle(ctx, &TokenRequest{GrantType: TypeRefreshToken, RefreshToken: first.RefreshToken, Scope: "openid profile", Credentials: webCreds})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidScope))

	second, err := e.registry.Handle(ctx, &TokenRequest{GrantType: TypeRefreshToken, RefreshToken: first.RefreshToken, Scope: "openid", Credentials: webCreds})
	require.NoError(t, err)
	assert.Equal(t, "openid", second.Scope)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// el par original quedó revocado
	_, err = e.deps.Tokens.ResolveBearer(ctx, first.AccessToken)
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidToken))
	_, err = e.registry.Handle(ctx, &TokenRequest{GrantType: TypeRefreshToken, RefreshToken: first.RefreshToken, Credentials: webCreds})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant))
}

func TestRefreshToken_ConcurrentRotationIssuesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	code := e.authorizeCode(t, "web", nil)
	first, err := e.registry.Handle(ctx, &TokenRequest{GrantType: TypeAuthorizationCode, Code: code, RedirectURI: redirectURI, Credentials: webCreds})
	require.NoError(t, err)
	require.NotEmpty(t, first.RefreshToken)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		invalid int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.registry.Handle(ctx, &TokenRequest{GrantType: TypeRefreshToken, RefreshToken: first.RefreshToken, Credentials: webCreds})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case oautherr.HasCode(err, oautherr.CodeInvalidGrant):
				invalid++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, invalid)
}

func TestClientCredentials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.registry.Handle(ctx, &TokenRequest{GrantType: TypeClientCredentials, Scope: "openid admin", Credentials: webCreds})
	require.NoError(t, err)
	assert.Equal(t, "openid", resp.Scope)
	assert.Empty(t, resp.RefreshToken)
	assert.Empty(t, resp.IDToken)

	_, err = e.registry.Handle(ctx, &TokenRequest{
		GrantType: TypeClientCredentials, Credentials: clientauth.Credentials{ClientID: "spa", Source: clientauth.SourceNone},
	})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeUnauthorizedClient))
}

func TestRegistry_Dispatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.registry.Handle(ctx, &TokenRequest{GrantType: "urn:example:unknown", Credentials: webCreds})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeUnsupportedGrantType))

	_, err = e.registry.Handle(ctx, &TokenRequest{GrantType: TypePassword, Username: "ada", Password: "x",
		Credentials: clientauth.Credentials{ClientID: "spa", Source: clientauth.SourceNone}})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidRequest) || oautherr.HasCode(err, oautherr.CodeUnauthorizedClient))

	_, err = e.registry.Handle(ctx, &TokenRequest{GrantType: TypeClientCredentials,
		Credentials: clientauth.Credentials{ClientID: "web", Secret: "wrong", Source: clientauth.SourceBasic}})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidClient))

	assert.Contains(t, e.registry.GrantTypes(), TypeJWTBearer)
}

func TestPasswordGrant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.registry.Handle(ctx, &TokenRequest{GrantType: TypePassword, Username: "ada", Password: "correct horse", Scope: "openid", Credentials: webCreds})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotEmpty(t, resp.IDToken)

	_, err = e.registry.Handle(ctx, &TokenRequest{GrantType: TypePassword, Username: "ada", Password: "nope", Credentials: webCreds})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant))

	locked := time.Now()
	u, err := e.conn.Users().Get(ctx, "u1")
	require.NoError(t, err)
	u.DisabledAt = &locked
	require.NoError(t, e.conn.Users().Update(ctx, *u))
	_, err = e.registry.Handle(ctx, &TokenRequest{GrantType: TypePassword, Username: "ada", Password: "correct horse", Credentials: webCreds})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant))
}

func TestJWTBearerGrant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sign := func(jti, sub string) string {
		tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, jwtv5.MapClaims{
			"iss": "svc", "sub": sub, "aud": issuer + "/oauth/token", "jti": jti,
			"exp": time.Now().Add(time.Minute).Unix(),
		})
		tk.Header["kid"] = "svc-1"
		s, err := tk.SignedString(e.clientKey)
		require.NoError(t, err)
		return s
	}

	resp, err := e.registry.Handle(ctx, &TokenRequest{GrantType: TypeJWTBearer, Assertion: sign("j1", "u1"), Scope: "api"})
	require.NoError(t, err)
	assert.Equal(t, "api", resp.Scope)
	assert.Empty(t, resp.RefreshToken)

	_, err = e.registry.Handle(ctx, &TokenRequest{GrantType: TypeJWTBearer, Assertion: sign("j1", "u1")})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant), "replayed jti")

	_, err = e.registry.Handle(ctx, &TokenRequest{GrantType: TypeJWTBearer, Assertion: sign("j2", "ghost")})
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidGrant), "unknown subject")
}

func TestAuthorize_LoginAndPromptNone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := AuthorizeRequest{ClientID: "web", RedirectURI: redirectURI, ResponseType: "code", Scope: "openid", ReturnTo: "/oauth/authorize?client_id=web"}

	res, err := e.authorizer.Authorize(ctx, req, nil)
	require.NoError(t, err)
	require.Equal(t, ResultRedirect, res.Kind)
	assert.True(t, strings.HasPrefix(res.RedirectURL, "/login?return_to="), res.RedirectURL)

	req.Prompt = "none"
	res, err = e.authorizer.Authorize(ctx, req, nil)
	require.NoError(t, err)
	require.Equal(t, ResultJSON, res.Kind)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, oautherr.Body{Error: oautherr.CodeLoginRequired}, res.Body)

	res, err = e.authorizer.Authorize(ctx, req, subject())
	require.NoError(t, err)
	assert.Equal(t, oautherr.Body{Error: oautherr.CodeConsentRequired}, res.Body)
}

func TestAuthorize_RedirectURIIsNeverUsedWhenInvalid(t *testing.T) {
	e := newEnv(t)
	_, err := e.authorizer.Authorize(context.Background(), AuthorizeRequest{
		ClientID: "web", RedirectURI: "https://evil.example.com/cb", ResponseType: "code",
	}, subject())
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidRequest))

	_, err = e.authorizer.Authorize(context.Background(), AuthorizeRequest{ClientID: "ghost", RedirectURI: redirectURI}, subject())
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidClient))
}

func TestAuthorize_RedirectedErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.authorizer.Authorize(ctx, AuthorizeRequest{ClientID: "web", RedirectURI: redirectURI, ResponseType: "token", State: "s"}, subject())
	require.NoError(t, err)
	p := redirectParams(t, res)
	assert.Equal(t, oautherr.CodeUnsupportedResponseType, p.Get("error"))
	assert.Equal(t, "s", p.Get("state"))

	res, err = e.authorizer.Authorize(ctx, AuthorizeRequest{ClientID: "web", RedirectURI: redirectURI, ResponseType: "code", Request: "eyJ..."}, subject())
	require.NoError(t, err)
	assert.Equal(t, oautherr.CodeRequestNotSupported, redirectParams(t, res).Get("error"))

	res, err = e.authorizer.Authorize(ctx, AuthorizeRequest{ClientID: "web", RedirectURI: redirectURI, ResponseType: "id_token token"}, subject())
	require.NoError(t, err)
	assert.Contains(t, res.RedirectURL, "#")
	assert.Equal(t, oautherr.CodeInvalidRequest, redirectParams(t, res).Get("error"), "nonce required")
}

func TestAuthorize_PromptValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := AuthorizeRequest{ClientID: "web", RedirectURI: redirectURI, ResponseType: "code", State: "s"}

	for _, prompt := range []string{"bogus", "login bogus", "create"} {
		req.Prompt = prompt
		res, err := e.authorizer.Authorize(ctx, req, subject())
		assert.Nil(t, res, prompt)
		require.True(t, oautherr.HasCode(err, oautherr.CodeInvalidRequest), prompt)
		assert.Equal(t, http.StatusBadRequest, oautherr.From(err).Status, prompt)
	}

	e.deps.Config.SelfRegistration = true
	e.deps.Config.RegisterURL = "/register"
	req.Prompt = "create"
	res, err := e.authorizer.Authorize(ctx, req, nil)
	require.NoError(t, err)
	require.Equal(t, ResultRedirect, res.Kind)
	assert.True(t, strings.HasPrefix(res.RedirectURL, "/register?"), res.RedirectURL)
}

func TestAuthorize_ConsentThenDecide(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := AuthorizeRequest{ClientID: "web", RedirectURI: redirectURI, ResponseType: "code id_token", Scope: "openid profile", State: "xyz", Nonce: "n"}

	res, err := e.authorizer.Authorize(ctx, req, subject())
	require.NoError(t, err)
	require.Equal(t, ResultJSON, res.Kind)
	prompt, ok := res.Body.(ConsentPrompt)
	require.True(t, ok)
	assert.Equal(t, "openid profile", prompt.Scope)

	res, err = e.authorizer.Decide(ctx, req, subject(), Decision{Accept: false, Challenge: prompt.Challenge})
	require.NoError(t, err)
	p := redirectParams(t, res)
	assert.Equal(t, oautherr.CodeAccessDenied, p.Get("error"))
	assert.Equal(t, "xyz", p.Get("state"))

	res, err = e.authorizer.Decide(ctx, req, subject(), Decision{Accept: true, Challenge: "forged"})
	require.NoError(t, err)
	assert.Equal(t, oautherr.CodeInvalidRequest, redirectParams(t, res).Get("error"))

	res, err = e.authorizer.Decide(ctx, req, subject(), Decision{Accept: true, Challenge: prompt.Challenge})
	require.NoError(t, err)
	p = redirectParams(t, res)
	require.NotEmpty(t, p.Get("code"))
	require.NotEmpty(t, p.Get("id_token"))

	c, err := e.deps.Signer.Parse(ctx, p.Get("id_token"), jwtx.ParseOptions{Audience: "web"})
	require.NoError(t, err)
	alg, err := e.deps.Signer.ActiveAlg(ctx)
	require.NoError(t, err)
	assert.Equal(t, jwtx.HalfHash(alg, p.Get("code")), c["c_hash"])

	// consent guardado: el siguiente authorize se aprueba solo
	res, err = e.authorizer.Authorize(ctx, req, subject())
	require.NoError(t, err)
	assert.NotEmpty(t, redirectParams(t, res).Get("code"))
}

func TestAuthorize_PreconsentSkipsPrompt(t *testing.T) {
	e := newEnv(t)
	res, err := e.authorizer.Authorize(context.Background(), AuthorizeRequest{
		ClientID: "spa", RedirectURI: redirectURI, ResponseType: "code", Scope: "openid",
	}, subject())
	require.NoError(t, err)
	assert.NotEmpty(t, redirectParams(t, res).Get("code"))
}

func TestAuthorize_RequireNonce(t *testing.T) {
	e := newEnv(t)
	e.deps.Config.RequireNonce = true
	ctx := context.Background()
	req := AuthorizeRequest{ClientID: "spa", RedirectURI: redirectURI, ResponseType: "code", Scope: "openid", Nonce: "once"}

	res, err := e.authorizer.Authorize(ctx, req, subject())
	require.NoError(t, err)
	assert.NotEmpty(t, redirectParams(t, res).Get("code"))

	res, err = e.authorizer.Authorize(ctx, req, subject())
	require.NoError(t, err)
	assert.Equal(t, oautherr.CodeInvalidRequest, redirectParams(t, res).Get("error"))

	req.Nonce = ""
	req.State = "st"
	res, err = e.authorizer.Authorize(ctx, req, subject())
	require.NoError(t, err)
	p := redirectParams(t, res)
	assert.Equal(t, oautherr.CodeInvalidRequest, p.Get("error"))
	assert.Equal(t, "st", p.Get("state"))
	assert.Empty(t, p.Get("code"))
}
