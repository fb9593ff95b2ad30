package grant

import (
	"context"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
)

type clientCredentialsGrant struct{ base }

func (g *clientCredentialsGrant) GrantType() string { return TypeClientCredentials }

func (g *clientCredentialsGrant) Validate(*TokenRequest) error { return nil }

// Issue emite un access token sin sujeto ni refresh. El scope se reduce al
// permitido para el client.
func (g *clientCredentialsGrant) Issue(ctx context.Context, req *TokenRequest, client *repository.Client) (*TokenResponse, error) {
	if client.IsPublic() {
		return nil, oautherr.UnauthorizedClient("public clients cannot use client_credentials")
	}
	scope := repository.ParseScope(client.GetAllowedScope(repository.ParseScope(req.Scope)))
	issued, err := g.d.Tokens.Issue(ctx, tokens.IssueParams{
		Client:    client,
		GrantType: TypeClientCredentials,
		Scope:     scope,
	})
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	return tokenResponse(issued), nil
}
