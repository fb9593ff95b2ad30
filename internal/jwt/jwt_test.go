package jwt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn-oidc/internal/store/adapters/memory"
)

func newIssuer(t *testing.T, alg string) *Issuer {
	t.Helper()
	ks := NewKeystore(memory.New().Keys())
	require.NoError(t, ks.EnsureBootstrap(context.Background(), alg))
	return NewIssuer("https://id.example.com", ks)
}

func claims(exp time.Time) jwtv5.MapClaims {
	return jwtv5.MapClaims{
		"iss": "https://id.example.com",
		"sub": "user-1",
		"aud": "client-1",
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	}
}

func TestSignParse_RoundTrip(t *testing.T) {
	for _, alg := range []string{AlgEdDSA, AlgRS256} {
		t.Run(alg, func(t *testing.T) {
			ctx := context.Background()
			iss := newIssuer(t, alg)

			tok, err := iss.Sign(ctx, claims(time.Now().Add(time.Minute)), "")
			require.NoError(t, err)

			got, err := iss.Parse(ctx, tok, ParseOptions{Audience: "client-1"})
			require.NoError(t, err)
			assert.Equal(t, "user-1", got["sub"])

			_, err = iss.Parse(ctx, tok, ParseOptions{Audience: "other"})
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestParse_Expired(t *testing.T) {
	ctx := context.Background()
	iss := newIssuer(t, AlgEdDSA)
	tok, err := iss.Sign(ctx, claims(time.Now().Add(-time.Hour)), "")
	require.NoError(t, err)

	_, err = iss.Parse(ctx, tok, ParseOptions{})
	assert.ErrorIs(t, err, ErrInvalidToken)

	got, err := iss.Parse(ctx, tok, ParseOptions{AllowExpired: true})
	require.NoError(t, err)
	assert.Equal(t, "user-1", got["sub"])
}

func TestParse_WrongIssuer(t *testing.T) {
	ctx := context.Background()
	iss := newIssuer(t, AlgEdDSA)
	c := claims(time.Now().Add(time.Minute))
	c["iss"] = "https://evil.example.com"
	tok, err := iss.Sign(ctx, c, "")
	require.NoError(t, err)

	_, err = iss.Parse(ctx, tok, ParseOptions{})
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = iss.Parse(ctx, tok, ParseOptions{AllowExpired: true})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Typ(t *testing.T) {
	ctx := context.Background()
	iss := newIssuer(t, AlgEdDSA)
	tok, err := iss.Sign(ctx, claims(time.Now().Add(time.Minute)), "consent+jwt")
	require.NoError(t, err)

	_, err = iss.Parse(ctx, tok, ParseOptions{Typ: "consent+jwt"})
	require.NoError(t, err)
	_, err = iss.Parse(ctx, tok, ParseOptions{Typ: "JWT"})
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = iss.Parse(ctx, tok, ParseOptions{AllowExpired: true, Typ: "jwt"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRotate_RetiringKeyStillVerifies(t *testing.T) {
	ctx := context.Background()
	iss := newIssuer(t, AlgEdDSA)
	old, err := iss.Keys.Active(ctx)
	require.NoError(t, err)

	tok, err := iss.Sign(ctx, claims(time.Now().Add(time.Minute)), "")
	require.NoError(t, err)

	newKID, err := iss.Keys.Rotate(ctx, AlgRS256)
	require.NoError(t, err)
	assert.NotEqual(t, old.KID, newKID)

	active, err := iss.Keys.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, newKID, active.KID)
	assert.Equal(t, AlgRS256, active.Alg)

	_, err = iss.Parse(ctx, tok, ParseOptions{})
	require.NoError(t, err)

	set, err := iss.Keys.JWKS(ctx)
	require.NoError(t, err)
	require.Len(t, set.Keys, 2)
	raw, err := json.Marshal(set)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"d"`, "private material must not be published")
	assert.Len(t, set.Key(old.KID), 1)
}

func TestHalfHash(t *testing.T) {
	// OIDC Core A.3 example: at_hash for RS256
	assert.Equal(t, "77QmUPtjPfzWtF2AnpK9RQ",
		HalfHash(AlgRS256, "jHkWEdUXMU1BwAsC4vtUsZwnNvTIxEl0z9K3vx5KF0Y"))
	assert.Len(t, HalfHash(AlgEdDSA, "x"), 43)
}
