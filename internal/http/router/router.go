// Package router arma el chi.Router con todas las rutas del servidor.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	healthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/health"
	oauthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/oauth"
	oidcctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/oidc"
	sessionctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/session"
	mw "github.com/dropDatabas3/hellojohn-oidc/internal/http/middlewares"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/rate"
)

// Deps contiene las dependencias del router.
type Deps struct {
	AuthServer *authserver.AuthServer
	// Limiter nil deshabilita el rate limit de token y login.
	Limiter rate.Limiter
	// Gatherer para /metrics. nil usa el registry default.
	Gatherer prometheus.Gatherer
	Version  string
}

// New registra todas las rutas.
func New(d Deps) http.Handler {
	as := d.AuthServer
	oauth := oauthctrl.NewControllers(as)
	oidc := oidcctrl.NewControllers(as)
	sess := sessionctrl.NewControllers(as)
	health := healthctrl.NewHealthController(as, d.Version)

	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(),
		mw.WithSecurityHeaders(),
		mw.WithCORS(as.Config.Server.CORSAllowedOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		oautherr.WriteJSON(w, http.StatusNotFound, oautherr.Body{Error: "not_found", Description: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		oautherr.WriteJSON(w, http.StatusMethodNotAllowed, oautherr.Body{Error: oautherr.CodeInvalidRequest, Description: "method not allowed"})
	})

	limited := mw.WithRateLimit(d.Limiter, mw.IPPathRateKey)
	noStore := mw.WithNoStore()

	r.Route("/oauth", func(r chi.Router) {
		r.Get("/authorize", oauth.Authorize.Authorize)
		r.Post("/authorize", oauth.Authorize.Authorize)
		r.With(limited, noStore).Post("/token", oauth.Token.Token)
		r.With(noStore).Post("/introspect", oauth.Introspect.Introspect)
		r.With(noStore).Post("/revoke", oauth.Revoke.Revoke)

		r.Group(func(r chi.Router) {
			r.Use(noStore)
			r.Post("/register", oauth.Register.Create)
			r.Get("/register/{client_id}", oauth.Register.Read)
			r.Put("/register/{client_id}", oauth.Register.Update)
			r.Delete("/register/{client_id}", oauth.Register.Delete)
		})

		r.Get("/jwks.json", oidc.JWKS.GetJWKS)
		r.Get("/userinfo", oidc.UserInfo.GetUserInfo)
		r.Post("/userinfo", oidc.UserInfo.GetUserInfo)
		r.Get("/end_session", oidc.EndSession.EndSession)
		r.Post("/end_session", oidc.EndSession.EndSession)
	})

	r.Get("/.well-known/oauth-authorization-server", oidc.Discovery.AuthorizationServer)
	r.Get("/.well-known/openid-configuration", oidc.Discovery.OpenIDConfiguration)
	r.Get("/.well-known/webfinger", oidc.Discovery.Webfinger)

	r.Route("/v1", func(r chi.Router) {
		r.With(limited).Post("/session/login", sess.Session.Login)
		r.Post("/session/logout", sess.Session.Logout)
		r.Get("/consents", sess.Consents.List)
		r.Post("/consents/{id}/revoke", sess.Consents.Revoke)
		r.Post("/consents/{id}/restore", sess.Consents.Restore)
	})

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}
