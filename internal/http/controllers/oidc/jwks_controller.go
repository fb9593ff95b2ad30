package oidc

import (
	"net/http"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// JWKSController publica las claves públicas de verificación.
type JWKSController struct {
	as *authserver.AuthServer
}

func NewJWKSController(as *authserver.AuthServer) *JWKSController {
	return &JWKSController{as: as}
}

// GetJWKS maneja GET /oauth/jwks.json. Incluye la clave activa y las que
// están en retiro.
func (c *JWKSController) GetJWKS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	set, err := c.as.Keys.JWKS(ctx)
	if err != nil {
		logger.From(ctx).Error("jwks build failed", logger.Layer("controller"), logger.Err(err))
		oautherr.Write(ctx, w, oautherr.ServerError(err))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	helpers.WriteJSON(w, http.StatusOK, set)
}
