// Package jwt firma y verifica los JWT del servidor (ID tokens, userinfo
// firmado, consent challenges) con las claves del Keystore.
package jwt

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"hash"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Leeway tolerado en exp/nbf/iat.
const Leeway = 30 * time.Second

var ErrInvalidToken = errors.New("invalid_jwt")

// Issuer firma tokens usando la clave activa del keystore.
type Issuer struct {
	Iss  string
	Keys *Keystore
}

func NewIssuer(iss string, ks *Keystore) *Issuer {
	return &Issuer{Iss: iss, Keys: ks}
}

// Algs devuelve los algoritmos con que el servidor puede firmar.
func (i *Issuer) Algs() []string { return []string{AlgEdDSA, AlgRS256} }

// ActiveAlg devuelve el alg de la clave activa.
func (i *Issuer) ActiveAlg(ctx context.Context) (string, error) {
	k, err := i.Keys.Active(ctx)
	if err != nil {
		return "", err
	}
	return k.Alg, nil
}

// Sign firma claims con la clave activa y setea kid/typ. typ vacío = "JWT".
func (i *Issuer) Sign(ctx context.Context, claims jwtv5.MapClaims, typ string) (string, error) {
	k, err := i.Keys.Active(ctx)
	if err != nil {
		return "", err
	}
	if typ == "" {
		typ = "JWT"
	}
	tk := jwtv5.NewWithClaims(k.Method(), claims)
	tk.Header["kid"] = k.KID
	tk.Header["typ"] = typ
	return tk.SignedString(k.Priv)
}

// Keyfunc elige la pubkey por 'kid' (active o retiring).
func (i *Issuer) Keyfunc(ctx context.Context) jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			k, err := i.Keys.Active(ctx)
			if err != nil {
				return nil, err
			}
			return k.Pub, nil
		}
		k, err := i.Keys.PublicKeyByKID(ctx, kid)
		if err != nil {
			return nil, err
		}
		if t.Method.Alg() != k.Alg {
			return nil, ErrInvalidToken
		}
		return k.Pub, nil
	}
}

// ParseOptions ajusta la validación de Parse.
type ParseOptions struct {
	Audience string
	// AllowExpired valida firma e iss pero ignora exp (id_token_hint).
	AllowExpired bool
	// Typ, si no está vacío, tiene que coincidir con el header typ.
	Typ string
}

// Parse verifica firma e iss, valida exp/nbf con Leeway y devuelve las claims.
func (i *Issuer) Parse(ctx context.Context, token string, opts ParseOptions) (jwtv5.MapClaims, error) {
	parserOpts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods(i.Algs()),
		jwtv5.WithLeeway(Leeway),
	}
	if opts.AllowExpired {
		parserOpts = append(parserOpts, jwtv5.WithoutClaimsValidation())
	} else {
		parserOpts = append(parserOpts, jwtv5.WithIssuer(i.Iss), jwtv5.WithExpirationRequired())
		if opts.Audience != "" {
			parserOpts = append(parserOpts, jwtv5.WithAudience(opts.Audience))
		}
	}

	claims := jwtv5.MapClaims{}
	tok, err := jwtv5.ParseWithClaims(token, claims, i.Keyfunc(ctx), parserOpts...)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if opts.Typ != "" {
		if typ, _ := tok.Header["typ"].(string); !strings.EqualFold(typ, opts.Typ) {
			return nil, ErrInvalidToken
		}
	}
	if opts.AllowExpired {
		if iss, _ := claims.GetIssuer(); iss != i.Iss {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// HalfHash calcula at_hash / c_hash (OIDC Core §3.1.3.6): mitad izquierda
// del hash del valor, en base64url. EdDSA usa SHA-512.
func HalfHash(alg, value string) string {
	var h hash.Hash
	switch alg {
	case AlgEdDSA:
		h = sha512.New()
	default:
		h = sha256.New()
	}
	h.Write([]byte(value))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
