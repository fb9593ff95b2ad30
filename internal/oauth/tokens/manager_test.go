package tokens

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/adapters/memory"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(t *testing.T) (*Manager, *clock, *memory.Conn) {
	t.Helper()
	conn := memory.New()
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, conn.Users().Create(context.Background(), repository.User{ID: "u1", Username: "ada"}))
	m := NewManager(Deps{
		Tokens: conn.Tokens(),
		Codes:  conn.Codes(),
		Users:  conn.Users(),
		Config: Config{Issuer: "https://idp.example.com", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		Now:    clk.Now,
	})
	return m, clk, conn
}

var web = &repository.Client{ClientID: "web", Audience: []string{"web", "api"}}

func TestIssue_RefreshRules(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	iss, err := m.Issue(ctx, IssueParams{Client: web, GrantType: "authorization_code", UserID: "u1", Scope: []string{"openid"}, WithRefresh: true})
	require.NoError(t, err)
	assert.Len(t, iss.AccessToken, 64)
	assert.NotEmpty(t, iss.RefreshToken)
	assert.EqualValues(t, 3600, iss.ExpiresIn)
	assert.NotEqual(t, iss.AccessToken, iss.Record.AccessTokenHash)

	cc, err := m.Issue(ctx, IssueParams{Client: web, GrantType: GrantClientCredentials, WithRefresh: true})
	require.NoError(t, err)
	assert.Empty(t, cc.RefreshToken)
	assert.Empty(t, cc.Record.RefreshTokenHash)
}

func TestIntrospect(t *testing.T) {
	m, clk, _ := newManager(t)
	ctx := context.Background()

	iss, err := m.Issue(ctx, IssueParams{Client: web, GrantType: "authorization_code", UserID: "u1", Scope: []string{"openid", "email"}, WithRefresh: true})
	require.NoError(t, err)

	got, err := m.Introspect(ctx, web, iss.AccessToken, "")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "openid email", got.Scope)
	assert.Equal(t, "ada", got.Username)
	assert.Equal(t, "u1", got.Sub)
	assert.Equal(t, clk.Now().Add(time.Hour).Unix(), got.Exp)

	// audiencia
	got, err = m.Introspect(ctx, &repository.Client{ClientID: "api"}, iss.AccessToken, "")
	require.NoError(t, err)
	assert.True(t, got.Active)
	got, err = m.Introspect(ctx, &repository.Client{ClientID: "intruder"}, iss.AccessToken, "")
	require.NoError(t, err)
	assert.False(t, got.Active)

	// refresh sigue activo cuando el access venció
	clk.Advance(2 * time.Hour)
	got, err = m.Introspect(ctx, web, iss.AccessToken, "")
	require.NoError(t, err)
	assert.False(t, got.Active)
	got, err = m.Introspect(ctx, web, iss.RefreshToken, "refresh_token")
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestIntrospect_InactiveIsExactlyActiveFalse(t *testing.T) {
	m, _, _ := newManager(t)

	got, err := m.Introspect(context.Background(), web, "does-not-exist", "")
	require.NoError(t, err)
	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"active":false}`, string(b))
}

func TestRevoke(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	iss, err := m.Issue(ctx, IssueParams{Client: web, GrantType: "password", UserID: "u1", WithRefresh: true})
	require.NoError(t, err)

	// desconocido y ajeno: éxito silencioso
	require.NoError(t, m.Revoke(ctx, web, "unknown", ""))
	require.NoError(t, m.Revoke(ctx, &repository.Client{ClientID: "other"}, iss.AccessToken, ""))
	_, err = m.ResolveBearer(ctx, iss.AccessToken)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, web, iss.RefreshToken, "refresh_token"))
	_, err = m.ResolveBearer(ctx, iss.AccessToken)
	assert.True(t, oautherr.HasCode(err, oautherr.CodeInvalidToken))

	// idempotente
	require.NoError(t, m.Revoke(ctx, web, iss.AccessToken, ""))
}

func TestSweep(t *testing.T) {
	m, clk, conn := newManager(t)
	ctx := context.Background()

	_, err := m.Issue(ctx, IssueParams{Client: web, GrantType: GrantClientCredentials})
	require.NoError(t, err)
	_, err = m.Issue(ctx, IssueParams{Client: web, GrantType: "password", UserID: "u1", WithRefresh: true})
	require.NoError(t, err)
	require.NoError(t, conn.Codes().Create(ctx, repository.AuthorizationCode{
		Code: "h", ClientID: "web", IssuedAt: clk.Now(), Lifetime: 10 * time.Minute,
	}))

	clk.Advance(2 * time.Hour)
	res, err := m.Sweep(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Codes: 1, Tokens: 1}, res)
}

func TestClaimRefresh_OnlyOnce(t *testing.T) {
	m, clk, conn := newManager(t)
	ctx := context.Background()

	iss, err := m.Issue(ctx, IssueParams{Client: web, GrantType: "authorization_code", UserID: "u1", Scope: []string{"openid"}, WithRefresh: true})
	require.NoError(t, err)

	ok, err := m.ClaimRefresh(ctx, &iss.Record)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ClaimRefresh(ctx, &iss.Record)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := conn.Tokens().GetByRefreshHash(ctx, iss.Record.RefreshTokenHash)
	require.NoError(t, err)
	require.NotNil(t, stored.RevokedAt)
	assert.True(t, stored.RevokedAt.Equal(clk.Now()))

	_, err = m.ClaimRefresh(ctx, &repository.Token{ID: "ghost"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
