// Package health contiene los controllers de liveness y readiness.
package health

import (
	"net/http"

	"github.com/dropDatabas3/hellojohn-oidc/internal/http/helpers"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// HealthController maneja /healthz y /readyz.
type HealthController struct {
	as      *authserver.AuthServer
	version string
}

func NewHealthController(as *authserver.AuthServer, version string) *HealthController {
	return &HealthController{as: as, version: version}
}

// Healthz responde 200 mientras el proceso esté vivo.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz verifica store y cache.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if c.version != "" {
		w.Header().Set("X-Service-Version", c.version)
	}
	if err := c.as.Ready(ctx); err != nil {
		logger.From(ctx).Warn("readiness check failed", logger.Layer("controller"), logger.Err(err))
		helpers.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
