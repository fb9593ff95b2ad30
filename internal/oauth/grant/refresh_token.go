package grant

import (
	"context"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
)

type refreshTokenGrant struct{ base }

func (g *refreshTokenGrant) GrantType() string { return TypeRefreshToken }

func (g *refreshTokenGrant) Validate(req *TokenRequest) error {
	if req.RefreshToken == "" {
		return oautherr.InvalidRequest("refresh_token is required")
	}
	return nil
}

// Issue rota el par: revoca el token original y emite uno nuevo con el
// mismo sujeto y un scope igual o menor.
func (g *refreshTokenGrant) Issue(ctx context.Context, req *TokenRequest, client *repository.Client) (*TokenResponse, error) {
	d := g.d
	old, err := d.Tokens.FindRefresh(ctx, req.RefreshToken)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidGrant("refresh token is invalid")
		}
		return nil, oautherr.ServerError(err)
	}
	if old.ClientID != client.ClientID || !old.IsRefreshTokenActive(d.now()) {
		return nil, oautherr.InvalidGrant("refresh token is invalid")
	}

	scope := old.Scope
	if requested := repository.ParseScope(req.Scope); len(requested) > 0 {
		if !repository.ScopeSubset(requested, old.Scope) {
			return nil, oautherr.InvalidScope("requested scope exceeds the original grant")
		}
		scope = requested
	}

	if old.UserID != "" {
		if _, err := g.loadUser(ctx, old.UserID); err != nil {
			return nil, err
		}
	}

	claimed, err := d.Tokens.ClaimRefresh(ctx, old)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidGrant("refresh token is invalid")
		}
		return nil, oautherr.ServerError(err)
	}
	if !claimed {
		return nil, oautherr.InvalidGrant("refresh token is invalid")
	}
	issued, err := d.Tokens.Issue(ctx, tokens.IssueParams{
		Client:      client,
		GrantType:   TypeRefreshToken,
		UserID:      old.UserID,
		Scope:       scope,
		WithRefresh: true,
	})
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	return tokenResponse(issued), nil
}
