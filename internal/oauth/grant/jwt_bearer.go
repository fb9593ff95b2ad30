package grant

import (
	"context"
	"errors"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
)

// jwtBearerGrant implementa RFC7523 §2.1: el client presenta un JWT
// firmado con su clave cuyo sub es el usuario.
type jwtBearerGrant struct{ base }

func (g *jwtBearerGrant) GrantType() string { return TypeJWTBearer }

func (g *jwtBearerGrant) Validate(req *TokenRequest) error {
	if req.Assertion == "" {
		return oautherr.InvalidRequest("assertion is required")
	}
	return nil
}

// AuthenticateClient acepta requests sin credenciales: el client es el iss
// de la assertion y la firma, verificada en Issue, lo autentica.
func (g *jwtBearerGrant) AuthenticateClient(ctx context.Context, req *TokenRequest) (*repository.Client, error) {
	if req.Credentials.Source != "" {
		return g.base.AuthenticateClient(ctx, req)
	}
	iss, _, err := clientauth.Unverified(req.Assertion)
	if err != nil || iss == "" {
		return nil, oautherr.InvalidGrant("assertion is malformed")
	}
	client, err := g.d.Clients.Get(ctx, iss)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidClient("unknown client")
		}
		return nil, oautherr.ServerError(err)
	}
	return client, nil
}

func (g *jwtBearerGrant) Issue(ctx context.Context, req *TokenRequest, client *repository.Client) (*TokenResponse, error) {
	d := g.d
	claims, err := d.Assertions.Verify(ctx, client, req.Assertion)
	if err != nil {
		if errors.Is(err, clientauth.ErrReplayedJTI) {
			return nil, oautherr.InvalidGrant(clientauth.ErrReplayedJTI.Error())
		}
		return nil, oautherr.InvalidGrant("assertion is invalid").WithCause(err)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, oautherr.InvalidGrant("assertion has no subject")
	}
	user, err := g.loadUser(ctx, sub)
	if err != nil {
		return nil, err
	}

	scope := repository.ParseScope(client.GetAllowedScope(repository.ParseScope(req.Scope)))
	issued, err := d.Tokens.Issue(ctx, tokens.IssueParams{
		Client:    client,
		GrantType: TypeJWTBearer,
		UserID:    user.ID,
		Scope:     scope,
	})
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	return tokenResponse(issued), nil
}
