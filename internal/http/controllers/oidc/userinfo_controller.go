package oidc

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
)

// UserInfoController maneja GET|POST /oauth/userinfo.
type UserInfoController struct {
	as *authserver.AuthServer
}

func NewUserInfoController(as *authserver.AuthServer) *UserInfoController {
	return &UserInfoController{as: as}
}

// GetUserInfo toma el token del header o, en POST, del form access_token
// (RFC6750 §2.2). Presentarlo de las dos formas es invalid_request.
func (c *UserInfoController) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	tok, hasHeader := helpers.BearerToken(r)
	if r.Method == http.MethodPost && strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/x-www-form-urlencoded") {
		if err := helpers.ParseForm(w, r); err != nil {
			oautherr.Write(ctx, w, err)
			return
		}
		if formTok := r.PostFormValue("access_token"); formTok != "" {
			if hasHeader {
				oautherr.Write(ctx, w, oautherr.InvalidRequest("access token presented more than once"))
				return
			}
			tok = formTok
		}
	}

	info, err := c.as.OIDC.UserInfo(ctx, tok)
	if err != nil {
		oautherr.Write(ctx, w, err)
		return
	}
	if info.JWT != "" {
		w.Header().Set("Content-Type", "application/jwt")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(info.JWT))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, info.Claims)
}
