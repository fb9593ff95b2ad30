// Package oidc contiene los controllers de discovery, JWKS, userinfo,
// end_session y webfinger.
package oidc

import "github.com/dropDatabas3/hellojohn-oidc/internal/oauth/authserver"

// Controllers agrupa los controllers OIDC.
type Controllers struct {
	Discovery  *DiscoveryController
	JWKS       *JWKSController
	UserInfo   *UserInfoController
	EndSession *EndSessionController
}

func NewControllers(as *authserver.AuthServer) *Controllers {
	return &Controllers{
		Discovery:  NewDiscoveryController(as),
		JWKS:       NewJWKSController(as),
		UserInfo:   NewUserInfoController(as),
		EndSession: NewEndSessionController(as),
	}
}
