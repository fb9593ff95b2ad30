// Package authserver arma el motor OAuth2/OIDC una sola vez a partir de la
// config y los colaboradores de infraestructura. El resultado se pasa
// explícitamente a la capa HTTP y al CLI.
package authserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/config"
	jwtx "github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/claims"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/clientauth"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/consent"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/discovery"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/grant"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oidc"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/registration"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/tokens"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/password"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store"
	"github.com/dropDatabas3/hellojohn-oidc/internal/users"
)

// Deps son los colaboradores de infraestructura ya conectados.
type Deps struct {
	DAL   store.DataAccessLayer
	Cache cache.Client
	// HTTPClient para jwks_uri remotos. nil usa uno con JWKSFetchTimeout.
	HTTPClient *http.Client
	// PasswordParams para secrets y contraseñas. Cero usa password.Default.
	PasswordParams password.Params
	Now            func() time.Time
}

// AuthServer agrupa los componentes del motor.
type AuthServer struct {
	Config *config.Config
	DAL    store.DataAccessLayer
	Cache  cache.Client

	Keys         *jwtx.Keystore
	Signer       *jwtx.Issuer
	ClientAuth   clientauth.Authenticator
	Assertions   *clientauth.AssertionVerifier
	Tokens       *tokens.Manager
	Consents     *consent.Ledger
	Claims       *claims.Builder
	Grants       *grant.Registry
	Authorizer   *grant.Authorizer
	Discovery    *discovery.Publisher
	Registration *registration.Service
	OIDC         *oidc.Service
	Users        *users.Service
	Sessions     *users.Sessions
}

// New construye el AuthServer y garantiza que exista una clave activa.
func New(ctx context.Context, cfg *config.Config, d Deps) (*AuthServer, error) {
	log := logger.From(ctx).With(logger.Component("authserver"))
	if d.DAL == nil || d.Cache == nil {
		return nil, errors.New("authserver: DAL and Cache are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	issuer := strings.TrimRight(cfg.Server.Issuer, "/")

	keys := jwtx.NewKeystore(d.DAL.Keys())
	if err := keys.EnsureBootstrap(ctx, cfg.Keys.Alg); err != nil {
		return nil, fmt.Errorf("authserver: bootstrap signing key: %w", err)
	}
	signer := jwtx.NewIssuer(issuer, keys)

	builder, err := claims.NewBuilder(cfg.OAuth.ClaimTemplates)
	if err != nil {
		return nil, fmt.Errorf("authserver: %w", err)
	}

	// Sin issuer no hay audiencia contra la cual validar assertions.
	var assertions *clientauth.AssertionVerifier
	if issuer != "" {
		httpc := d.HTTPClient
		if httpc == nil {
			httpc = &http.Client{Timeout: cfg.OAuth.JWKSFetchTimeout}
		}
		assertions = &clientauth.AssertionVerifier{
			Audiences: []string{issuer, issuer + "/oauth/token"},
			JWKS:      clientauth.NewJWKSCache(cfg.OAuth.JWKSCacheTTL, httpc),
			Replay:    d.Cache,
			JTITTL:    cfg.OAuth.JTITTL,
			Now:       d.Now,
		}
	} else {
		log.Warn("server.issuer is empty: private_key_jwt and the jwt-bearer grant are disabled")
	}

	clientAuth := clientauth.NewAuthenticator(clientauth.Deps{Clients: d.DAL.Clients(), Assertions: assertions})

	tokenMgr := tokens.NewManager(tokens.Deps{
		Tokens: d.DAL.Tokens(),
		Codes:  d.DAL.Codes(),
		Users:  d.DAL.Users(),
		Config: tokens.Config{Issuer: issuer, AccessTTL: cfg.OAuth.AccessTTL, RefreshTTL: cfg.OAuth.RefreshTTL},
		Now:    d.Now,
	})
	ledger := consent.NewLedger(consent.Deps{Consents: d.DAL.Consents(), Tokens: d.DAL.Tokens(), Now: d.Now})

	userSvc := users.NewService(users.Deps{Users: d.DAL.Users(), Params: d.PasswordParams, Now: d.Now})
	sessions := users.NewSessions(users.SessionDeps{
		Cache: d.Cache,
		Auth:  userSvc,
		Config: users.SessionConfig{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Session.Secure,
			SameSite:   cfg.Session.SameSite,
			Domain:     cfg.Session.Domain,
		},
		Now: d.Now,
	})

	gd := &grant.Deps{
		Clients:    d.DAL.Clients(),
		Codes:      d.DAL.Codes(),
		Users:      d.DAL.Users(),
		Tokens:     tokenMgr,
		Consents:   ledger,
		ClientAuth: clientAuth,
		Assertions: assertions,
		UserAuth:   userSvc,
		Claims:     builder,
		Signer:     signer,
		Cache:      d.Cache,
		Config: grant.Config{
			Issuer:           issuer,
			CodeTTL:          cfg.OAuth.CodeTTL,
			IDTokenTTL:       cfg.OAuth.IDTokenTTL,
			RequireNonce:     cfg.OAuth.RequireNonce,
			SelfRegistration: cfg.OAuth.SelfRegistration,
			LoginURL:         cfg.OAuth.LoginURL,
			ConsentURL:       cfg.OAuth.ConsentURL,
			RegisterURL:      cfg.OAuth.RegisterURL,
		},
		Now: d.Now,
	}
	registry := grant.NewDefaultRegistry(gd)

	publisher := discovery.NewPublisher(discovery.Config{
		Issuer:              issuer,
		ScopesSupported:     cfg.OAuth.ScopesSupported,
		GrantTypes:          append(registry.GrantTypes(), grant.TypeImplicit),
		ResponseTypes:       grant.ResponseTypesSupported,
		SigningAlgs:         signer.Algs(),
		SelfRegistration:    cfg.OAuth.SelfRegistration,
		RegistrationEnabled: true,
		AssertionsEnabled:   assertions != nil,
	})

	reg := registration.NewService(d.DAL.Clients(), registration.Config{
		Policy:          cfg.Registration.Policy,
		Tokens:          cfg.Registration.Tokens,
		BaseURL:         issuer,
		ScopesSupported: cfg.OAuth.ScopesSupported,
		PasswordParams:  d.PasswordParams,
	})

	return &AuthServer{
		Config:       cfg,
		DAL:          d.DAL,
		Cache:        d.Cache,
		Keys:         keys,
		Signer:       signer,
		ClientAuth:   clientAuth,
		Assertions:   assertions,
		Tokens:       tokenMgr,
		Consents:     ledger,
		Claims:       builder,
		Grants:       registry,
		Authorizer:   grant.NewAuthorizer(gd),
		Discovery:    publisher,
		Registration: reg,
		OIDC: oidc.NewService(oidc.Deps{
			Tokens:  tokenMgr,
			Clients: d.DAL.Clients(),
			Users:   d.DAL.Users(),
			Claims:  builder,
			Signer:  signer,
			Now:     d.Now,
		}),
		Users:    userSvc,
		Sessions: sessions,
	}, nil
}

// Issuer devuelve el issuer normalizado (sin "/" final).
func (s *AuthServer) Issuer() string { return s.Signer.Iss }

// Ready verifica store y cache.
func (s *AuthServer) Ready(ctx context.Context) error {
	if err := s.DAL.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := s.Cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Sweep borra codes y tokens vencidos.
func (s *AuthServer) Sweep(ctx context.Context) (tokens.SweepResult, error) {
	return s.Tokens.Sweep(ctx, s.Tokens.Now())
}

// RunCleanup barre cada interval hasta que ctx se cancela.
func (s *AuthServer) RunCleanup(ctx context.Context, interval time.Duration) {
	log := logger.From(ctx).With(logger.Component("cleanup"))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				log.Error("sweep failed", logger.Err(err))
				continue
			}
			log.Debug("sweep done", logger.Int("codes", res.Codes), logger.Int("tokens", res.Tokens))
		}
	}
}
