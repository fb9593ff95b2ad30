package grant

import (
	"context"
	"sort"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// GrantHandler es la estrategia de un grant_type en el token endpoint.
type GrantHandler interface {
	GrantType() string
	// Validate revisa los parámetros requeridos antes de autenticar.
	Validate(req *TokenRequest) error
	AuthenticateClient(ctx context.Context, req *TokenRequest) (*repository.Client, error)
	Issue(ctx context.Context, req *TokenRequest, client *repository.Client) (*TokenResponse, error)
}

// Registry despacha por grant_type.
type Registry struct {
	handlers map[string]GrantHandler
}

func NewRegistry(handlers ...GrantHandler) *Registry {
	r := &Registry{handlers: make(map[string]GrantHandler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// NewDefaultRegistry registra todos los grants soportados. jwt-bearer sólo
// si hay verificador de assertions.
func NewDefaultRegistry(d *Deps) *Registry {
	r := NewRegistry(
		&authorizationCodeGrant{base{d}},
		&refreshTokenGrant{base{d}},
		&clientCredentialsGrant{base{d}},
		&passwordGrant{base{d}},
	)
	if d.Assertions != nil {
		r.Register(&jwtBearerGrant{base{d}})
	}
	return r
}

func (r *Registry) Register(h GrantHandler) {
	r.handlers[h.GrantType()] = h
}

// GrantTypes lista los grant_type registrados, ordenados.
func (r *Registry) GrantTypes() []string {
	out := make([]string, 0, len(r.handlers))
	for gt := range r.handlers {
		out = append(out, gt)
	}
	sort.Strings(out)
	return out
}

// Handle valida, autentica al client, verifica que el grant le esté
// permitido y emite.
func (r *Registry) Handle(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.GrantType == "" {
		return nil, oautherr.InvalidRequest("grant_type is required")
	}
	h, ok := r.handlers[req.GrantType]
	if !ok {
		return nil, oautherr.UnsupportedGrantType("grant_type not supported")
	}
	if err := h.Validate(req); err != nil {
		return nil, err
	}
	client, err := h.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrantType(req.GrantType) {
		return nil, oautherr.UnauthorizedClient("client is not allowed to use this grant_type")
	}

	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("grant.Handle"),
		logger.GrantType(req.GrantType), logger.ClientID(client.ClientID))
	resp, err := h.Issue(ctx, req, client)
	if err != nil {
		return nil, err
	}
	log.Info("token issued")
	return resp, nil
}

// base da la autenticación de client por defecto.
type base struct{ d *Deps }

func (b base) AuthenticateClient(ctx context.Context, req *TokenRequest) (*repository.Client, error) {
	return b.d.ClientAuth.Authenticate(ctx, req.Credentials)
}

// loadUser carga al sujeto de un grant. Ausente o bloqueado es invalid_grant.
func (b base) loadUser(ctx context.Context, userID string) (*repository.User, error) {
	u, err := b.d.Users.Get(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidGrant("resource owner not found")
		}
		return nil, oautherr.ServerError(err)
	}
	if u.IsLocked() {
		return nil, oautherr.InvalidGrant("resource owner is locked")
	}
	return u, nil
}
