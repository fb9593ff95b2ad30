// Package registration implementa Dynamic Client Registration (RFC7591) y
// su management protocol (RFC7592).
package registration

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/password"
	tokens "github.com/dropDatabas3/hellojohn-oidc/internal/security/token"
)

// Políticas de acceso a POST /register.
const (
	PolicyOpen   = "open"
	PolicyBearer = "bearer"
)

const secretBytes = 32

// Config de registración.
type Config struct {
	Policy string
	// Tokens son los initial access tokens aceptados con PolicyBearer.
	Tokens []string
	// BaseURL es el issuer; registration_client_uri cuelga de acá.
	BaseURL         string
	ScopesSupported []string
	// PasswordParams para hashear client secrets. Cero usa password.Default.
	PasswordParams password.Params
}

// Response es la respuesta de registro (RFC7591 §3.2.1).
type Response struct {
	Metadata
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64  `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64  `json:"client_secret_expires_at"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string `json:"registration_client_uri"`
}

// Service registra y administra clients dinámicos.
type Service struct {
	clients repository.ClientRepository
	cfg     Config
	now     func() time.Time
}

func NewService(clients repository.ClientRepository, cfg Config) *Service {
	if cfg.PasswordParams == (password.Params{}) {
		cfg.PasswordParams = password.Default
	}
	return &Service{clients: clients, cfg: cfg, now: time.Now}
}

// Create registra un client nuevo. initialToken es el Bearer del request.
func (s *Service) Create(ctx context.Context, initialToken string, md Metadata) (*Response, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("registration.Create"))

	if s.cfg.Policy != PolicyOpen && !s.initialTokenAllowed(initialToken) {
		return nil, oautherr.InvalidToken("initial access token is missing or invalid")
	}
	md.applyDefaults()
	if err := md.check(s.cfg.ScopesSupported); err != nil {
		return nil, err
	}

	now := s.now()
	c := repository.Client{
		ClientID:  uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyMetadata(&c, md, s.cfg.ScopesSupported)
	c.Audience = []string{c.ClientID}

	secret, err := s.rotateSecret(&c)
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	regToken, err := tokens.GenerateOpaqueToken(tokens.AccessTokenBytes)
	if err != nil {
		return nil, oautherr.ServerError(err)
	}
	c.RegistrationTokenHash = tokens.SHA256Base64URL(regToken)

	if err := s.clients.Create(ctx, c); err != nil {
		return nil, oautherr.ServerError(err)
	}
	log.Debug("client stored", logger.ClientID(c.ClientID))
	audit.Log(ctx, audit.ClientRegistered, logger.ClientID(c.ClientID), logger.AuthMethod(c.TokenEndpointAuthMethod))

	resp := s.response(&c)
	resp.ClientSecret = secret
	resp.RegistrationAccessToken = regToken
	return resp, nil
}

// Read devuelve la metadata del client (RFC7592 §2.1).
func (s *Service) Read(ctx context.Context, clientID, regToken string) (*Response, error) {
	c, err := s.authorize(ctx, clientID, regToken)
	if err != nil {
		return nil, err
	}
	return s.response(c), nil
}

// Update reemplaza la metadata (RFC7592 §2.2). El secret se conserva salvo
// que el client pase de público a confidencial.
func (s *Service) Update(ctx context.Context, clientID, regToken string, md Metadata) (*Response, error) {
	c, err := s.authorize(ctx, clientID, regToken)
	if err != nil {
		return nil, err
	}
	md.applyDefaults()
	if err := md.check(s.cfg.ScopesSupported); err != nil {
		return nil, err
	}

	wasPublic := c.IsPublic() || c.SecretHash == ""
	applyMetadata(c, md, s.cfg.ScopesSupported)
	c.UpdatedAt = s.now()

	var secret string
	switch {
	case c.IsPublic() || c.TokenEndpointAuthMethod == repository.AuthMethodPrivateKey:
		c.SecretHash = ""
	case wasPublic:
		if secret, err = s.rotateSecret(c); err != nil {
			return nil, oautherr.ServerError(err)
		}
	}
	if err := s.clients.Update(ctx, *c); err != nil {
		return nil, oautherr.ServerError(err)
	}
	audit.Log(ctx, audit.ClientUpdated, logger.ClientID(c.ClientID), logger.Bool("secret_issued", secret != ""))
	resp := s.response(c)
	resp.ClientSecret = secret
	return resp, nil
}

// Delete elimina el client (RFC7592 §2.3).
func (s *Service) Delete(ctx context.Context, clientID, regToken string) error {
	if _, err := s.authorize(ctx, clientID, regToken); err != nil {
		return err
	}
	if err := s.clients.Delete(ctx, clientID); err != nil {
		return oautherr.ServerError(err)
	}
	audit.Log(ctx, audit.ClientDeleted, logger.ClientID(clientID))
	return nil
}

// authorize exige que regToken sea el registration_access_token emitido
// para ese client_id. Un client inexistente responde igual que un token
// incorrecto.
func (s *Service) authorize(ctx context.Context, clientID, regToken string) (*repository.Client, error) {
	if regToken == "" {
		return nil, oautherr.InvalidToken("registration access token required")
	}
	c, err := s.clients.Get(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, oautherr.InvalidToken("registration access token is invalid")
		}
		return nil, oautherr.ServerError(err)
	}
	if c.RegistrationTokenHash == "" || !tokens.Equal(tokens.SHA256Base64URL(regToken), c.RegistrationTokenHash) {
		return nil, oautherr.InvalidToken("registration access token is invalid")
	}
	return c, nil
}

func (s *Service) initialTokenAllowed(tok string) bool {
	if tok == "" {
		return false
	}
	ok := false
	for _, allowed := range s.cfg.Tokens {
		// sin corto-circuito: el tiempo no depende de cuál coincide
		if tokens.Equal(tok, allowed) {
			ok = true
		}
	}
	return ok
}

// rotateSecret genera un secret para clients confidenciales con secret.
func (s *Service) rotateSecret(c *repository.Client) (string, error) {
	switch c.TokenEndpointAuthMethod {
	case repository.AuthMethodNone, repository.AuthMethodPrivateKey:
		c.SecretHash = ""
		return "", nil
	}
	secret, err := tokens.GenerateOpaqueToken(secretBytes)
	if err != nil {
		return "", err
	}
	hash, err := password.Hash(s.cfg.PasswordParams, secret)
	if err != nil {
		return "", err
	}
	c.SecretHash = hash
	return secret, nil
}

func applyMetadata(c *repository.Client, md Metadata, defaultScopes []string) {
	c.Name = md.ClientName
	c.RedirectURIs = slices.Clone(md.RedirectURIs)
	c.PostLogoutRedirectURIs = slices.Clone(md.PostLogoutRedirectURIs)
	c.GrantTypes = slices.Clone(md.GrantTypes)
	c.ResponseTypes = slices.Clone(md.ResponseTypes)
	c.TokenEndpointAuthMethod = md.TokenEndpointAuthMethod
	c.Scope = repository.ParseScope(md.Scope)
	if len(c.Scope) == 0 {
		c.Scope = slices.Clone(defaultScopes)
	}
	c.JWKS = []byte(md.JWKS)
	c.JWKSURI = md.JWKSURI
	c.SoftwareID = md.SoftwareID
	c.SoftwareVersion = md.SoftwareVersion
	c.UserinfoSignedResponseAlg = md.UserinfoSignedResponseAlg
}

func (s *Service) response(c *repository.Client) *Response {
	return &Response{
		Metadata: Metadata{
			RedirectURIs:              c.RedirectURIs,
			PostLogoutRedirectURIs:    c.PostLogoutRedirectURIs,
			ClientName:                c.Name,
			TokenEndpointAuthMethod:   c.TokenEndpointAuthMethod,
			GrantTypes:                c.GrantTypes,
			ResponseTypes:             c.ResponseTypes,
			Scope:                     repository.JoinScope(c.Scope),
			JWKS:                      c.JWKS,
			JWKSURI:                   c.JWKSURI,
			SoftwareID:                c.SoftwareID,
			SoftwareVersion:           c.SoftwareVersion,
			UserinfoSignedResponseAlg: c.UserinfoSignedResponseAlg,
		},
		ClientID:              c.ClientID,
		ClientIDIssuedAt:      c.CreatedAt.Unix(),
		ClientSecretExpiresAt: 0,
		RegistrationClientURI: strings.TrimRight(s.cfg.BaseURL, "/") + "/oauth/register/" + c.ClientID,
	}
}
