package oidc

import (
	"net/http"
	"net/url"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	oidcsvc "github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oidc"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// EndSessionController maneja GET|POST /oauth/end_session (RP-Initiated
// Logout 1.0).
type EndSessionController struct {
	as *authserver.AuthServer
}

func NewEndSessionController(as *authserver.AuthServer) *EndSessionController {
	return &EndSessionController{as: as}
}

// ConfirmationPrompt se devuelve cuando no hay id_token_hint válido; el
// usuario confirma con un POST que agrega confirm=yes.
type ConfirmationPrompt struct {
	ConfirmationRequired bool   `json:"confirmation_required"`
	ClientID             string `json:"client_id,omitempty"`
	PostLogoutRedirect   string `json:"post_logout_redirect_uri,omitempty"`
	State                string `json:"state,omitempty"`
}

func (c *EndSessionController) EndSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("EndSessionController.EndSession"))

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

	res, err := c.as.OIDC.EndSession(ctx, oidcsvc.EndSessionRequest{
		IDTokenHint:           params.Get("id_token_hint"),
		ClientID:              params.Get("client_id"),
		LogoutHint:            params.Get("logout_hint"),
		PostLogoutRedirectURI: params.Get("post_logout_redirect_uri"),
		State:                 params.Get("state"),
	})
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}

	confirmed := r.Method == http.MethodPost && params.Get("confirm") == "yes"
	if !res.Verified && !confirmed {
		helpers.WriteJSON(w, http.StatusOK, ConfirmationPrompt{
			ConfirmationRequired: true,
			ClientID:             res.ClientID,
			PostLogoutRedirect:   params.Get("post_logout_redirect_uri"),
			State:                params.Get("state"),
		})
		return
	}

	if ck, err := r.Cookie(c.as.Sessions.CookieName()); err == nil {
		if err := c.as.Sessions.Logout(ctx, ck.Value); err != nil {
			log.Error("session logout failed", logger.Err(err))
			oautherr.Write(ctx, w, oautherr.ServerError(err))
			return
		}
	}
	http.SetCookie(w, c.as.Sessions.DeletionCookie())
	log.Debug("session ended", logger.UserID(res.Subject), logger.ClientID(res.ClientID))

	if res.RedirectURL != "" {
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}
