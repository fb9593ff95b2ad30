// Package session contiene los controllers de sesión por cookie y de
// administración de consents del usuario logueado.
package session

import (
	"net/http"

	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"
	"github.com/dropDatabas3/hellojohn-oidc/internal/users"
)

// Controllers agrupa los controllers de sesión.
type Controllers struct {
	Session  *SessionController
	Consents *ConsentController
}

func NewControllers(as *authserver.AuthServer) *Controllers {
	return &Controllers{
		Session:  NewSessionController(as.Sessions),
		Consents: NewConsentController(as),
	}
}

// sessionCookie devuelve el sid crudo o "".
func sessionCookie(r *http.Request, s *users.Sessions) string {
	ck, err := r.Cookie(s.CookieName())
	if err != nil {
		return ""
	}
	return ck.Value
}
