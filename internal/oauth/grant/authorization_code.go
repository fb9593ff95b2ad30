package grant

import (
	"context"
	"slices"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/pkce"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	sectok "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

type authorizationCodeGrant struct{ base }

func (g *authorizationCodeGrant) GrantType() string { return TypeAuthorizationCode }

func (g *authorizationCodeGrant) Validate(req *TokenRequest) error {
	if req.Code == "" {
		return oautherr.InvalidRequest("code is required")
	}
	if req.RedirectURI == "" {
		return oautherr.InvalidRequest("redirect_uri is required")
	}
	return nil
}

func (g *authorizationCodeGrant) Issue(ctx context.Context, req *TokenRequest, client *repository.Client) (*TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("grant.authorization_code"))
	d := g.d
	hash := sectok.SHA256Base64URL(req.Code)

	code, err := d.Codes.Get(ctx, hash)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidGrant("authorization code is invalid or was already used")
		}
		return nil, oautherr.ServerError(err)
	}
	if code.ClientID != client.ClientID {
		return nil, oautherr.InvalidGrant("authorization code was issued to another client")
	}
	if code.RevokedAt != nil {
		return nil, oautherr.InvalidGrant("authorization code was revoked")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, oautherr.InvalidGrant("redirect_uri does not match the authorization request")
	}
	if code.IsExpired(d.now()) {
		_ = d.Codes.Delete(ctx, hash)
		return nil, oautherr.InvalidGrant("authorization code expired")
	}
	if err := pkce.Verify(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier); err != nil {
		return nil, oautherr.InvalidGrant("code_verifier is invalid").WithCause(err)
	}

	// single-use: sólo quien logra borrar el código emite.
	if err := d.Codes.Delete(ctx, hash); err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidGrant("authorization code is invalid or was already used")
		}
		return nil, oautherr.ServerError(err)
	}

	user, err := g.loadUser(ctx, code.UserID)
	if err != nil {
		return nil, err
	}

	issued, err := d.Tokens.Issue(ctx, tokens.IssueParams{
		Client:      client,
		GrantType:   TypeAuthorizationCode,
		UserID:      user.ID,
		Scope:       code.Scope,
		WithRefresh: client.AllowsGrantType(TypeRefreshToken),
	})
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	resp := tokenResponse(issued)

	if slices.Contains(code.Scope, "openid") {
		idt, err := d.mintIDToken(ctx, idTokenInput{
			Client:      client,
			User:        user,
			Scope:       code.Scope,
			AuthTime:    code.AuthTime,
			Nonce:       code.Nonce,
			AccessToken: issued.AccessToken,
		})
		if err != nil {
			return nil, oautherr.ServerError(err)
		}
		resp.IDToken = idt
	}
	log.Debug("code exchanged", logger.ClientID(client.ClientID), logger.UserID(user.ID))
	return resp, nil
}
