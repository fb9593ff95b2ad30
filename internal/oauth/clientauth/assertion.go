package clientauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// AssertionType es el client_assertion_type de RFC7523 §2.2.
const AssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Leeway tolerado sobre exp/nbf de las assertions.
const Leeway = 30 * time.Second

// Algoritmos aceptados para assertions firmadas por clients.
var assertionAlgs = []string{
	"RS256", "RS384", "RS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

var (
	ErrNoClientKeys   = errors.New("client has no jwks")
	ErrKeyNotFound    = errors.New("no matching key in client jwks")
	ErrAmbiguousKey   = errors.New("assertion has no kid and client jwks has several keys")
	ErrBadAudience    = errors.New("assertion audience mismatch")
	ErrMissingJTI     = errors.New("assertion has no jti")
	ErrReplayedJTI    = errors.New("Invalid claim 'jti'")
	ErrIssuerMismatch = errors.New("assertion iss does not match client_id")
)

// AssertionVerifier verifica JWTs firmados por un client: client
// assertions (RFC7523 §2.2) y el grant jwt-bearer (RFC7523 §2.1).
type AssertionVerifier struct {
	// Audiences aceptadas: token endpoint e issuer.
	Audiences []string
	JWKS      *JWKSCache
	Replay    cache.Client
	JTITTL    time.Duration
	Now       func() time.Time
}

// Unverified devuelve iss y sub sin verificar la firma. Sólo sirve para
// resolver qué client emitió la assertion.
func Unverified(assertion string) (iss, sub string, err error) {
	claims := jwtv5.MapClaims{}
	if _, _, err := jwtv5.NewParser().ParseUnverified(assertion, claims); err != nil {
		return "", "", err
	}
	iss, _ = claims.GetIssuer()
	sub, _ = claims.GetSubject()
	return iss, sub, nil
}

// Verify valida firma con las claves del client, iss == client_id, aud,
// ventana exp/nbf y que el jti no se haya usado. Devuelve las claims.
func (v *AssertionVerifier) Verify(ctx context.Context, client *repository.Client, assertion string) (jwtv5.MapClaims, error) {
	set, err := v.keySet(ctx, client)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	claims := jwtv5.MapClaims{}
	_, err = jwtv5.ParseWithClaims(assertion, claims, keyfunc(set),
		jwtv5.WithValidMethods(assertionAlgs),
		jwtv5.WithLeeway(Leeway),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithTimeFunc(now),
	)
	if err != nil {
		return nil, err
	}

	if iss, _ := claims.GetIssuer(); iss != client.ClientID {
		return nil, ErrIssuerMismatch
	}
	aud, _ := claims.GetAudience()
	if !slices.ContainsFunc(aud, func(a string) bool { return slices.Contains(v.Audiences, a) }) {
		return nil, ErrBadAudience
	}

	sub, _ := claims.GetSubject()
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, ErrMissingJTI
	}
	ok, err := v.Replay.SetNX(ctx, "jti:"+sub+"-"+jti, "1", v.JTITTL)
	if err != nil {
		return nil, fmt.Errorf("jti replay cache: %w", err)
	}
	if !ok {
		return nil, ErrReplayedJTI
	}
	return claims, nil
}

func (v *AssertionVerifier) keySet(ctx context.Context, c *repository.Client) (jwk.Set, error) {
	switch {
	case len(c.JWKS) > 0:
		return jwk.Parse(c.JWKS)
	case c.JWKSURI != "":
		return v.JWKS.Get(ctx, c.JWKSURI)
	default:
		return nil, ErrNoClientKeys
	}
}

// keyfunc elige la clave por kid; sin kid sólo vale si el set tiene una.
func keyfunc(set jwk.Set) jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		var (
			key   jwk.Key
			found bool
		)
		if kid, _ := t.Header["kid"].(string); kid != "" {
			key, found = set.LookupKeyID(kid)
		} else if set.Len() == 1 {
			key, found = set.Key(0)
		} else {
			return nil, ErrAmbiguousKey
		}
		if !found {
			return nil, ErrKeyNotFound
		}

		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, fmt.Errorf("export client key: %w", err)
		}
		return raw, nil
	}
}
