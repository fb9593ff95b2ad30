package grant

import (
	"context"
	"slices"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

type passwordGrant struct{ base }

func (g *passwordGrant) GrantType() string { return TypePassword }

func (g *passwordGrant) Validate(req *TokenRequest) error {
	if req.Username == "" || req.Password == "" {
		return oautherr.InvalidRequest("username and password are required")
	}
	return nil
}

func (g *passwordGrant) Issue(ctx context.Context, req *TokenRequest, client *repository.Client) (*TokenResponse, error) {
	d := g.d
	user, err := d.UserAuth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		logger.From(ctx).Warn("password grant rejected",
			logger.Layer("service"), logger.ClientID(client.ClientID), logger.Err(err))
		return nil, oautherr.InvalidGrant("invalid resource owner credentials")
	}
	if user.IsLocked() {
		return nil, oautherr.InvalidGrant("resource owner is locked")
	}

	scope := repository.ParseScope(client.GetAllowedScope(repository.ParseScope(req.Scope)))
	issued, err := d.Tokens.Issue(ctx, tokens.IssueParams{
		Client:      client,
		GrantType:   TypePassword,
		UserID:      user.ID,
		Scope:       scope,
		WithRefresh: client.AllowsGrantType(TypeRefreshToken),
	})
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	resp := tokenResponse(issued)
	if slices.Contains(scope, "openid") {
		idt, err := d.mintIDToken(ctx, idTokenInput{
			Client:      client,
			User:        user,
			Scope:       scope,
			AuthTime:    d.now(),
			AccessToken: issued.AccessToken,
		})
		if err != nil {
			return nil, oautherr.ServerError(err)
		}
		resp.IDToken = idt
	}
	return resp, nil
}
