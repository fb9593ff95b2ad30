// Package grant implementa el authorization endpoint y los grants del
// token endpoint (RFC6749, RFC7636, RFC7523 §2.1, OIDC Core).
package grant

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	jwtx "github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/claims"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/consent"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
)

// Grant types soportados.
const (
	TypeAuthorizationCode = "authorization_code"
	TypeRefreshToken      = "refresh_token"
	TypeClientCredentials = "client_credentials"
	TypePassword          = "password"
	TypeJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	TypeImplicit          = "implicit"
)

// UserAuthenticator valida credenciales de usuario (grant password).
type UserAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*repository.User, error)
}

// Config agrupa los parámetros del motor de grants.
type Config struct {
	Issuer           string
	CodeTTL          time.Duration
	IDTokenTTL       time.Duration
	RequireNonce     bool
	SelfRegistration bool
	LoginURL         string
	ConsentURL       string
	RegisterURL      string
}

// Deps contiene las dependencias compartidas por grants y authorizer.
type Deps struct {
	Clients    repository.ClientRepository
	Codes      repository.CodeRepository
	Users      repository.UserRepository
	Tokens     *tokens.Manager
	Consents   *consent.Ledger
	ClientAuth clientauth.Authenticator
	// Assertions nil deshabilita el grant jwt-bearer.
	Assertions *clientauth.AssertionVerifier
	UserAuth   UserAuthenticator
	Claims     *claims.Builder
	Signer     *jwtx.Issuer
	Cache      cache.Client
	Config     Config
	Now        func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// TokenRequest es un request al token endpoint ya parseado.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string
	Username     string
	Password     string
	Assertion    string
	Credentials  clientauth.Credentials
}

// TokenResponse es la respuesta exitosa (RFC6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

func tokenResponse(iss *tokens.Issued) *TokenResponse {
	return &TokenResponse{
		AccessToken:  iss.AccessToken,
		TokenType:    iss.Record.TokenType,
		ExpiresIn:    iss.ExpiresIn,
		RefreshToken: iss.RefreshToken,
		Scope:        repository.JoinScope(iss.Record.Scope),
	}
}

// idTokenInput son los datos variables de un ID token.
type idTokenInput struct {
	Client      *repository.Client
	User        *repository.User
	Scope       []string
	AuthTime    time.Time
	Nonce       string
	AccessToken string
	Code        string
}

// mintIDToken firma un ID token con la clave activa.
func (d *Deps) mintIDToken(ctx context.Context, in idTokenInput) (string, error) {
	alg, err := d.Signer.ActiveAlg(ctx)
	if err != nil {
		return "", err
	}
	c := d.Claims.IDTokenClaims(claims.IDTokenParams{
		Issuer:      d.Config.Issuer,
		ClientID:    in.Client.ClientID,
		User:        in.User,
		Scope:       in.Scope,
		AuthTime:    in.AuthTime,
		Nonce:       in.Nonce,
		AccessToken: in.AccessToken,
		Code:        in.Code,
		Alg:         alg,
		IssuedAt:    d.now(),
		TTL:         d.Config.IDTokenTTL,
	})
	return d.Signer.Sign(ctx, c, "JWT")
}
