package oidc

import (
	"context"
	"net/http"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	jwtx "github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/claims"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/adapters/memory"
)

const issuer = "https://idp.example.com"

type fixture struct {
	svc    *Service
	tokens *tokens.Manager
	signer *jwtx.Issuer
	conn   *memory.Conn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn := memory.New()

	ks := jwtx.NewKeystore(conn.Keys())
	require.NoError(t, ks.EnsureBootstrap(ctx, jwtx.AlgEdDSA))
	signer := jwtx.NewIssuer(issuer, ks)
	builder, err := claims.NewBuilder(nil)
	require.NoError(t, err)

	require.NoError(t, conn.Clients().Create(ctx, repository.Client{
		ClientID: "web",
		Scope:    []string{"openid", "email", "profile"},
	}))
	require.NoError(t, conn.Clients().Create(ctx, repository.Client{
		ClientID:                  "signed",
		Scope:                     []string{"openid", "email"},
		UserinfoSignedResponseAlg: "EdDSA",
		PostLogoutRedirectURIs:    []string{"https://app.example.com/bye"},
	}))
	require.NoError(t, conn.Users().Create(ctx, repository.User{
		ID: "u1", Username: "ada", Email: "ada@example.com", EmailVerified: true,
		Profile: map[string]string{"given_name": "Ada"},
	}))

	tm := tokens.NewManager(tokens.Deps{
		Tokens: conn.Tokens(), Codes: conn.Codes(), Users: conn.Users(),
		Config: tokens.Config{Issuer: issuer, AccessTTL: time.Hour, RefreshTTL: time.Hour},
	})
	return &fixture{
		svc: NewService(Deps{
			Tokens: tm, Clients: conn.Clients(), Users: conn.Users(), Claims: builder, Signer: signer,
		}),
		tokens: tm,
		signer: signer,
		conn:   conn,
	}
}

func (f *fixture) issue(t *testing.T, clientID, userID string, scope ...string) string {
	t.Helper()
	c, err := f.conn.Clients().Get(context.Background(), clientID)
	require.NoError(t, err)
	iss, err := f.tokens.Issue(context.Background(), tokens.IssueParams{
		Client: c, GrantType: "authorization_code", UserID: userID, Scope: scope,
	})
	require.NoError(t, err)
	return iss.AccessToken
}

func requireCode(t *testing.T, err error, code string, status int) {
	t.Helper()
	require.Error(t, err)
	oe := oautherr.From(err)
	assert.Equal(t, code, oe.Code)
	assert.Equal(t, status, oe.Status)
}

func TestUserInfo_FiltersByScope(t *testing.T) {
	f := newFixture(t)
	at := f.issue(t, "web", "u1", "openid", "email")

	info, err := f.svc.UserInfo(context.Background(), at)
	require.NoError(t, err)
	assert.Empty(t, info.JWT)
	assert.Equal(t, "u1", info.Claims["sub"])
	assert.Equal(t, "ada@example.com", info.Claims["email"])
	assert.Equal(t, true, info.Claims["email_verified"])
	assert.NotContains(t, info.Claims, "given_name")
}

func TestUserInfo_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UserInfo(ctx, "")
	requireCode(t, err, oautherr.CodeInvalidToken, http.StatusUnauthorized)

	_, err = f.svc.UserInfo(ctx, "not-a-token")
	requireCode(t, err, oautherr.CodeInvalidToken, http.StatusUnauthorized)

	_, err = f.svc.UserInfo(ctx, f.issue(t, "web", "", "openid"))
	requireCode(t, err, oautherr.CodeInvalidToken, http.StatusUnauthorized)

	_, err = f.svc.UserInfo(ctx, f.issue(t, "web", "u1", "email"))
	requireCode(t, err, "insufficient_scope", http.StatusForbidden)
}

func TestUserInfo_Signed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.issue(t, "signed", "u1", "openid", "email")

	info, err := f.svc.UserInfo(ctx, at)
	require.NoError(t, err)
	require.NotEmpty(t, info.JWT)

	c, err := f.signer.Parse(ctx, info.JWT, jwtx.ParseOptions{AllowExpired: true})
	require.NoError(t, err)
	assert.Equal(t, "u1", c["sub"])
	assert.Equal(t, "signed", c["aud"])
	assert.Equal(t, "ada@example.com", c["email"])
}

func (f *fixture) idToken(t *testing.T, aud string, exp time.Time) string {
	t.Helper()
	tok, err := f.signer.Sign(context.Background(), jwtv5.MapClaims{
		"iss": issuer, "sub": "u1", "aud": aud, "azp": aud,
		"iat": exp.Add(-time.Hour).Unix(), "exp": exp.Unix(),
	}, "JWT")
	require.NoError(t, err)
	return tok
}

func TestEndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expired := f.idToken(t, "signed", time.Now().Add(-time.Hour))

	t.Run("expired hint still identifies the session", func(t *testing.T) {
		res, err := f.svc.EndSession(ctx, EndSessionRequest{
			IDTokenHint:           expired,
			PostLogoutRedirectURI: "https://app.example.com/bye",
			State:                 "xyz",
		})
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.Equal(t, "u1", res.Subject)
		assert.Equal(t, "signed", res.ClientID)
		assert.Equal(t, "https://app.example.com/bye?state=xyz", res.RedirectURL)
	})

	t.Run("client_id outside aud", func(t *testing.T) {
		res, err := f.svc.EndSession(ctx, EndSessionRequest{IDTokenHint: expired, ClientID: "web"})
		require.NoError(t, err)
		assert.False(t, res.Verified)
	})

	t.Run("logout_hint mismatch", func(t *testing.T) {
		res, err := f.svc.EndSession(ctx, EndSessionRequest{IDTokenHint: expired, LogoutHint: "u2"})
		require.NoError(t, err)
		assert.False(t, res.Verified)
	})

	t.Run("garbage hint", func(t *testing.T) {
		res, err := f.svc.EndSession(ctx, EndSessionRequest{IDTokenHint: "a.b.c"})
		require.NoError(t, err)
		assert.False(t, res.Verified)
	})

	t.Run("signed jwt that is not an id token", func(t *testing.T) {
		now := time.Now()
		challenge, err := f.signer.Sign(ctx, jwtv5.MapClaims{
			"iss": issuer, "sub": "u1", "aud": "signed", "azp": "signed",
			"iat": now.Unix(), "exp": now.Add(time.Minute).Unix(),
		}, "consent+jwt")
		require.NoError(t, err)
		userinfo, err := f.signer.Sign(ctx, jwtv5.MapClaims{
			"iss": issuer, "sub": "u1", "aud": "signed", "iat": now.Unix(),
		}, "JWT")
		require.NoError(t, err)

		for _, hint := range []string{challenge, userinfo} {
			res, err := f.svc.EndSession(ctx, EndSessionRequest{IDTokenHint: hint})
			require.NoError(t, err)
			assert.False(t, res.Verified)
		}
	})

	t.Run("unregistered redirect", func(t *testing.T) {
		_, err := f.svc.EndSession(ctx, EndSessionRequest{ClientID: "signed", PostLogoutRedirectURI: "https://evil.example.com"})
		requireCode(t, err, oautherr.CodeInvalidRequest, http.StatusBadRequest)
	})

	t.Run("redirect without client", func(t *testing.T) {
		_, err := f.svc.EndSession(ctx, EndSessionRequest{PostLogoutRedirectURI: "https://app.example.com/bye"})
		requireCode(t, err, oautherr.CodeInvalidRequest, http.StatusBadRequest)
	})
}
