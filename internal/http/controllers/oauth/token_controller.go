package oauth

import (
	"net/http"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/grant"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// TokenController maneja POST /oauth/token.
type TokenController struct {
	as *authserver.AuthServer
}

func NewTokenController(as *authserver.AuthServer) *TokenController {
	return &TokenController{as: as}
}

func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := helpers.RequirePOSTForm(w, r); err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	creds, err := clientauth.FromRequest(r)
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}

	req := &grant.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		Assertion:    r.PostFormValue("assertion"),
		Credentials:  creds,
	}
	logger.From(ctx).Debug("token request",
		logger.ClientID(creds.ClientID), logger.GrantType(req.GrantType))

	resp, err := c.as.Grants.Handle(ctx, req)
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	oautherr.WriteJSON(w, http.StatusOK, resp)
}
