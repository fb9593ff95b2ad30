package oauth

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/grant"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/users"
)

// Campos del POST de decisión de consent; no forman parte del request OAuth.
const (
	fieldConsentChallenge = "consent_challenge"
	fieldDecision         = "decision"
)

// AuthorizeController maneja GET|POST /oauth/authorize.
type AuthorizeController struct {
	as *authserver.AuthServer
}

func NewAuthorizeController(as *authserver.AuthServer) *AuthorizeController {
	return &AuthorizeController{as: as}
}

// Authorize resuelve la sesión por cookie y delega en el Authorizer. Un POST
// con consent_challenge es la decisión del usuario.
func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthorizeController.Authorize"))

	w.Header().Add("Vary", "Cookie")

	var params url.Values
	switch r.Method {
	case http.MethodGet:
		params = r.URL.Query()
	case http.MethodPost:
		if err := helpers.ParseForm(w, r); err != nil {
			oautherr.Write(ctx, w, err)
			return
		}
		params = r.Form
	default:
		w.Header().Set("Allow", "GET, POST")
		oautherr.Write(ctx, w, oautherr.New(http.StatusMethodNotAllowed, oautherr.CodeInvalidRequest, "only GET and POST are allowed"))
		return
	}

	req := grant.ParseAuthorizeRequest(params)
	req.ReturnTo = c.returnTo(params)

	subject, err := c.subject(r)
	if err != nil {
		log.Error("session lookup failed", logger.Err(err))
		oautherr.Write(ctx, w, oautherr.ServerError(err))
		return
	}

	var res *grant.AuthorizeResult
	if challenge := params.Get(fieldConsentChallenge); r.Method == http.MethodPost && challenge != "" {
		res, err = c.as.Authorizer.Decide(ctx, req, subject, grant.Decision{
			Accept:    params.Get(fieldDecision) == "accept",
			Challenge: challenge,
		})
	} else {
		res, err = c.as.Authorizer.Authorize(ctx, req, subject)
	}
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}

	switch res.Kind {
	case grant.ResultRedirect:
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
	default:
		helpers.WriteJSON(w, res.Status, res.Body)
	}
}

func (c *AuthorizeController) subject(r *http.Request) (*grant.Subject, error) {
	sess, err := c.as.Sessions.FromRequest(r)
	if errors.Is(err, users.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grant.Subject{UserID: sess.UserID, AuthTime: sess.AuthTime}, nil
}

// returnTo reconstruye el GET original sin los campos de la decisión.
func (c *AuthorizeController) returnTo(params url.Values) string {
	q := url.Values{}
	for k, v := range params {
		if k == fieldConsentChallenge || k == fieldDecision {
			continue
		}
		q[k] = v
	}
	return c.as.Issuer() + "/oauth/authorize?" + q.Encode()
}
