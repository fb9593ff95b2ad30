package oidc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/discovery"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
)

// DiscoveryController publica los metadatos del servidor.
type DiscoveryController struct {
	as *authserver.AuthServer
}

func NewDiscoveryController(as *authserver.AuthServer) *DiscoveryController {
	return &DiscoveryController{as: as}
}

// AuthorizationServer maneja GET /.well-known/oauth-authorization-server (RFC8414).
func (c *DiscoveryController) AuthorizationServer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", discovery.CacheControl)
	helpers.WriteJSON(w, http.StatusOK, c.as.Discovery.AuthorizationServer())
}

// OpenIDConfiguration maneja GET /.well-known/openid-configuration.
func (c *DiscoveryController) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", discovery.CacheControl)
	helpers.WriteJSON(w, http.StatusOK, c.as.Discovery.OpenIDProvider())
}

// Webfinger maneja GET /.well-known/webfinger (RFC7033).
func (c *DiscoveryController) Webfinger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jrd, err := c.as.Discovery.Webfinger(q.Get("resource"), q["rel"])
	if err != nil {
		if errors.Is(err, discovery.ErrMissingResource) {
			oautherr.Write(r.Context(), w, oautherr.InvalidRequest("resource is required"))
			return
		}
		oautherr.Write(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/jrd+json")
	w.Header().Set("Cache-Control", discovery.CacheControl)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(jrd)
}
