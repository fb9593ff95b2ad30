// Package oidc implementa userinfo y RP-initiated logout (end_session)
// sobre los tokens y claves del motor.
package oidc

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	jwtx "github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/claims"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

const codeInsufficientScope = "insufficient_scope"

type Deps struct {
	Tokens  *tokens.Manager
	Clients repository.ClientRepository
	Users   repository.UserRepository
	Claims  *claims.Builder
	Signer  *jwtx.Issuer
	Now     func() time.Time
}

type Service struct {
	d Deps
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{d: d}
}

// UserInfo es la respuesta de /oauth/userinfo. JWT no vacío indica que el
// client pidió la respuesta firmada (application/jwt).
type UserInfo struct {
	Claims map[string]any
	JWT    string
}

// UserInfo resuelve el bearer y devuelve las claims filtradas por scope.
func (s *Service) UserInfo(ctx context.Context, rawToken string) (*UserInfo, error) {
	tok, err := s.d.Tokens.ResolveBearer(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if tok.UserID == "" {
		return nil, oautherr.InvalidToken("access token has no subject")
	}
	if !slices.Contains(tok.Scope, "openid") {
		return nil, oautherr.New(http.StatusForbidden, codeInsufficientScope, "the openid scope is required")
	}
	u, err := s.d.Users.Get(ctx, tok.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidToken("subject no longer exists")
		}
		return nil, oautherr.ServerError(err)
	}
	if u.IsLocked() {
		return nil, oautherr.InvalidToken("subject is locked")
	}

	out := s.d.Claims.UserClaims(u, tok.Scope)
	out["sub"] = u.ID

	client, err := s.d.Clients.Get(ctx, tok.ClientID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, oautherr.ServerError(err)
	}
	if client == nil || client.UserinfoSignedResponseAlg == "" {
		return &UserInfo{Claims: out}, nil
	}

	signed := jwtv5.MapClaims{}
	for k, v := range out {
		signed[k] = v
	}
	signed["iss"] = s.d.Signer.Iss
	signed["aud"] = client.ClientID
	signed["iat"] = s.d.Now().Unix()
	jwt, err := s.d.Signer.Sign(ctx, signed, "JWT")
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	return &UserInfo{Claims: out, JWT: jwt}, nil
}

// EndSessionRequest son los parámetros de OIDC RP-Initiated Logout.
type EndSessionRequest struct {
	IDTokenHint           string
	ClientID              string
	LogoutHint            string
	PostLogoutRedirectURI string
	State                 string
}

// EndSessionResult indica si el hint validó (logout sin confirmación) y a
// dónde redirigir después.
type EndSessionResult struct {
	Verified    bool
	Subject     string
	ClientID    string
	RedirectURL string
}

// EndSession valida el request. No toca la sesión: eso es del caller.
func (s *Service) EndSession(ctx context.Context, req EndSessionRequest) (*EndSessionResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oidc.EndSession"))
	res := &EndSessionResult{ClientID: req.ClientID}

	if req.IDTokenHint != "" {
		c, err := s.d.Signer.Parse(ctx, req.IDTokenHint, jwtx.ParseOptions{AllowExpired: true, Typ: "JWT"})
		if err != nil {
			log.Debug("id_token_hint rejected", logger.Err(err))
		} else if sub, ok := s.hintMatches(c, req); ok {
			res.Verified = true
			res.Subject = sub
			if res.ClientID == "" {
				res.ClientID = hintClient(c)
			}
		}
	}

	if req.PostLogoutRedirectURI == "" {
		return res, nil
	}
	if res.ClientID == "" {
		return nil, oautherr.InvalidRequest("post_logout_redirect_uri requires client_id or id_token_hint")
	}
	client, err := s.d.Clients.Get(ctx, res.ClientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidRequest("client is not registered")
		}
		return nil, oautherr.ServerError(err)
	}
	if !client.HasPostLogoutRedirectURI(req.PostLogoutRedirectURI) {
		return nil, oautherr.InvalidRequest("post_logout_redirect_uri is not registered")
	}

	u, err := url.Parse(req.PostLogoutRedirectURI)
	if err != nil {
		return nil, oautherr.InvalidRequest("post_logout_redirect_uri is invalid")
	}
	if req.State != "" {
		q := u.Query()
		q.Set("state", req.State)
		u.RawQuery = q.Encode()
	}
	res.RedirectURL = u.String()
	return res, nil
}

// hintMatches aplica client_id ∈ aud y logout_hint == sub. Sólo acepta
// tokens con forma de ID token (sub, exp y azp dentro de aud); un userinfo
// firmado no sirve como hint.
func (s *Service) hintMatches(c jwtv5.MapClaims, req EndSessionRequest) (string, bool) {
	sub, _ := c.GetSubject()
	azp, _ := c["azp"].(string)
	exp, _ := c.GetExpirationTime()
	aud, _ := c.GetAudience()
	if sub == "" || exp == nil || azp == "" || !slices.Contains([]string(aud), azp) {
		return "", false
	}
	if req.ClientID != "" && !slices.Contains([]string(aud), req.ClientID) {
		return "", false
	}
	if req.LogoutHint != "" && req.LogoutHint != sub {
		return "", false
	}
	return sub, true
}

// hintClient toma azp, o aud si tiene un solo valor.
func hintClient(c jwtv5.MapClaims) string {
	if azp, _ := c["azp"].(string); azp != "" {
		return azp
	}
	if aud, _ := c.GetAudience(); len(aud) == 1 {
		return aud[0]
	}
	return ""
}
