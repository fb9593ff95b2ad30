package oauth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
)

// IntrospectController maneja POST /oauth/introspect (RFC7662).
type IntrospectController struct {
	as *authserver.AuthServer
}

func NewIntrospectController(as *authserver.AuthServer) *IntrospectController {
	return &IntrospectController{as: as}
}

func (c *IntrospectController) Introspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client, ok := authenticatedForm(w, r, c.as)
	if !ok {
		return
	}
	tok := strings.TrimSpace(r.PostFormValue("token"))
	if tok == "" {
		oautherr.Write(ctx, w, oautherr.InvalidRequest("token is required"))
		return
	}
	res, err := c.as.Tokens.Introspect(ctx, client, tok, r.PostFormValue("token_type_hint"))
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	oautherr.WriteJSON(w, http.StatusOK, res)
}

// RevokeController maneja POST /oauth/revoke (RFC7009).
type RevokeController struct {
	as *authserver.AuthServer
}

func NewRevokeController(as *authserver.AuthServer) *RevokeController {
	return &RevokeController{as: as}
}

// Revoke responde 200 aunque el token no exista o sea de otro client.
func (c *RevokeController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client, ok := authenticatedForm(w, r, c.as)
	if !ok {
		return
	}
	tok := strings.TrimSpace(r.PostFormValue("token"))
	if tok == "" {
		oautherr.Write(ctx, w, oautherr.InvalidRequest("token is required"))
		return
	}
	if err := c.as.Tokens.Revoke(ctx, client, tok, r.PostFormValue("token_type_hint")); err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
}

// authenticatedForm parsea el form y autentica al client. Si falla ya
// escribió la respuesta.
func authenticatedForm(w http.ResponseWriter, r *http.Request, as *authserver.AuthServer) (*repository.Client, bool) {
	ctx := r.Context()
	if err := helpers.RequirePOSTForm(w, r); err != nil {
		oautherr.Write(ctx, w, err)
		return nil, false
	}
	creds, err := clientauth.FromRequest(r)
	if err != nil {
		oautherr.Write(ctx, w, err)
		return nil, false
	}
	client, err := as.ClientAuth.Authenticate(ctx, creds)
	if err != nil {
		oautherr.Write(ctx, w, err)
		return nil, false
	}
	return client, true
}
