package repository

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Métodos de autenticación en el token endpoint (RFC7591 §2).
const (
	AuthMethodSecretBasic = "client_secret_basic"
	AuthMethodSecretPost  = "client_secret_post"
	AuthMethodSecretJWT   = "client_secret_jwt"
	AuthMethodPrivateKey  = "private_key_jwt"
	AuthMethodNone        = "none"
)

// Client representa una aplicación registrada.
type Client struct {
	ClientID                  string
	SecretHash                string // argon2id PHC; vacío si no tiene secret
	Name                      string
	RedirectURIs              []string
	PostLogoutRedirectURIs    []string
	GrantTypes                []string
	ResponseTypes             []string
	TokenEndpointAuthMethod   string
	Scope                     []string
	JWKS                      []byte // JWKS inline (JSON crudo)
	JWKSURI                   string
	Audience                  []string // client_ids que pueden figurar como aud
	Preconsent                bool
	SoftwareID                string
	SoftwareVersion           string
	UserinfoSignedResponseAlg string
	RegistrationTokenHash     string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// HasClientSecret es false para clientes públicos ("none") o sin secret.
func (c *Client) HasClientSecret() bool {
	return c.TokenEndpointAuthMethod != AuthMethodNone && c.SecretHash != ""
}

// IsPublic indica token_endpoint_auth_method=none.
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// HasRedirectURI compara por igualdad exacta.
func (c *Client) HasRedirectURI(uri string) bool {
	return uri != "" && slices.Contains(c.RedirectURIs, uri)
}

// HasPostLogoutRedirectURI compara por igualdad exacta.
func (c *Client) HasPostLogoutRedirectURI(uri string) bool {
	return uri != "" && slices.Contains(c.PostLogoutRedirectURIs, uri)
}

// AllowsGrantType reporta si grant_type está registrado para el client.
func (c *Client) AllowsGrantType(gt string) bool {
	return slices.Contains(c.GrantTypes, gt)
}

// AllowsResponseType compara sin importar el orden ("id_token code" == "code id_token").
func (c *Client) AllowsResponseType(rt string) bool {
	want := NormalizeResponseType(rt)
	for _, r := range c.ResponseTypes {
		if NormalizeResponseType(r) == want {
			return true
		}
	}
	return false
}

// GetAllowedScope intersecta lo pedido con el scope del client. Un pedido
// vacío devuelve el scope completo del client.
func (c *Client) GetAllowedScope(requested []string) string {
	if len(requested) == 0 {
		return JoinScope(c.Scope)
	}
	return JoinScope(ScopeIntersect(requested, c.Scope))
}

// AudienceOrSelf devuelve la audiencia registrada o [client_id].
func (c *Client) AudienceOrSelf() []string {
	if len(c.Audience) == 0 {
		return []string{c.ClientID}
	}
	return slices.Clone(c.Audience)
}

// NormalizeResponseType ordena los componentes de un response_type.
func NormalizeResponseType(rt string) string {
	parts := strings.Fields(rt)
	slices.Sort(parts)
	return strings.Join(parts, " ")
}

// ClientRepository define operaciones sobre clients.
type ClientRepository interface {
	// Get obtiene un client por client_id.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, clientID string) (*Client, error)

	// List devuelve todos los clients.
	List(ctx context.Context) ([]Client, error)

	// Create persiste un client nuevo. ErrConflict si el client_id existe.
	Create(ctx context.Context, c Client) error

	// Update reemplaza un client existente. ErrNotFound si no existe.
	Update(ctx context.Context, c Client) error

	// Delete elimina un client. ErrNotFound si no existe.
	Delete(ctx context.Context, clientID string) error
}
