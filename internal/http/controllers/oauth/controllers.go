// Package oauth contiene los controllers de los endpoints OAuth2:
// authorize, token, introspect, revoke y registro dinámico de clients.
package oauth

import "github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"

// Controllers agrupa todos los controllers del dominio OAuth.
type Controllers struct {
	Authorize  *AuthorizeController
	Token      *TokenController
	Introspect *IntrospectController
	Revoke     *RevokeController
	Register   *RegisterController
}

// NewControllers crea los controllers a partir del AuthServer ya armado.
func NewControllers(as *authserver.AuthServer) *Controllers {
	return &Controllers{
		Authorize:  NewAuthorizeController(as),
		Token:      NewTokenController(as),
		Introspect: NewIntrospectController(as),
		Revoke:     NewRevokeController(as),
		Register:   NewRegisterController(as),
	}
}
