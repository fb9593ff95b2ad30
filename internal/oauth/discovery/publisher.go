// Package discovery publica la metadata del authorization server (RFC8414),
// OIDC Discovery 1.0 y WebFinger.
package discovery

import (
	"errors"
	"reflect"
	"slices"
	"strings"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// CacheControl para las respuestas de discovery.
const CacheControl = "public, max-age=600"

var (
	subjectTypesSupported         = []string{"public"}
	codeChallengeMethodsSupported = []string{"plain", "S256"}
	responseModesSupported        = []string{"query", "fragment"}
	tokenEndpointAuthMethods      = []string{
		repository.AuthMethodSecretBasic,
		repository.AuthMethodSecretPost,
		repository.AuthMethodPrivateKey,
		repository.AuthMethodNone,
	}
	assertionSigningAlgs = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}
	claimsSupported      = []string{
		"iss", "sub", "aud", "exp", "iat", "auth_time", "nonce", "azp",
		"at_hash", "c_hash",
		"name", "given_name", "family_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
		"email", "email_verified", "phone_number", "phone_number_verified",
		"address", "groups",
	}
	promptValues = []string{"none", "login", "consent", "select_account"}
)

// Config es lo que varía entre despliegues.
type Config struct {
	Issuer           string
	ScopesSupported  []string
	GrantTypes       []string
	ResponseTypes    []string
	SigningAlgs      []string
	SelfRegistration bool
	// RegistrationEnabled publica registration_endpoint.
	RegistrationEnabled bool
	// AssertionsEnabled publica los algs de private_key_jwt.
	AssertionsEnabled bool
}

// Publisher arma los documentos de metadata.
type Publisher struct {
	cfg  Config
	base string
}

func NewPublisher(cfg Config) *Publisher {
	return &Publisher{cfg: cfg, base: strings.TrimRight(cfg.Issuer, "/")}
}

// AuthorizationServer devuelve la metadata RFC8414.
func (p *Publisher) AuthorizationServer() map[string]any {
	authMethods := tokenEndpointAuthMethods
	var authAlgs []string
	if p.cfg.AssertionsEnabled {
		authAlgs = assertionSigningAlgs
	} else {
		authMethods = without(authMethods, repository.AuthMethodPrivateKey)
	}

	m := map[string]any{
		"issuer":                                p.cfg.Issuer,
		"authorization_endpoint":                p.base + "/oauth/authorize",
		"token_endpoint":                        p.base + "/oauth/token",
		"jwks_uri":                              p.base + "/oauth/jwks.json",
		"revocation_endpoint":                   p.base + "/oauth/revoke",
		"introspection_endpoint":                p.base + "/oauth/introspect",
		"scopes_supported":                      p.cfg.ScopesSupported,
		"response_types_supported":              p.cfg.ResponseTypes,
		"response_modes_supported":              responseModesSupported,
		"grant_types_supported":                 p.cfg.GrantTypes,
		"token_endpoint_auth_methods_supported": authMethods,
		"token_endpoint_auth_signing_alg_values_supported":         authAlgs,
		"revocation_endpoint_auth_methods_supported":               authMethods,
		"introspection_endpoint_auth_methods_supported":            authMethods,
		"code_challenge_methods_supported":                         codeChallengeMethodsSupported,
		"request_parameter_supported":                              false,
		"request_uri_parameter_supported":                          false,
		"claims_parameter_supported":                               false,
		"introspection_endpoint_auth_signing_alg_values_supported": authAlgs,
	}
	if p.cfg.RegistrationEnabled {
		m["registration_endpoint"] = p.base + "/oauth/register"
	}
	return compact(m)
}

// OpenIDProvider devuelve la metadata OIDC Discovery: la de RFC8414 más
// los campos de OpenID.
func (p *Publisher) OpenIDProvider() map[string]any {
	m := p.AuthorizationServer()
	prompts := promptValues
	if p.cfg.SelfRegistration {
		prompts = append(append([]string{}, promptValues...), "create")
	}
	m["userinfo_endpoint"] = p.base + "/oauth/userinfo"
	m["end_session_endpoint"] = p.base + "/oauth/end_session"
	m["subject_types_supported"] = subjectTypesSupported
	m["id_token_signing_alg_values_supported"] = p.cfg.SigningAlgs
	m["userinfo_signing_alg_values_supported"] = p.cfg.SigningAlgs
	m["claims_supported"] = claimsSupported
	m["prompt_values_supported"] = prompts
	return compact(m)
}

// Link es un link de un JRD (RFC7033).
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// JRD es la respuesta de WebFinger.
type JRD struct {
	Subject string `json:"subject"`
	Links   []Link `json:"links"`
}

// IssuerRel es el rel de OIDC Discovery §2.
const IssuerRel = "http://openid.net/specs/connect/1.0/issuer"

var ErrMissingResource = errors.New("resource is required")

// Webfinger responde por resource. Sólo se publica el rel de issuer; un rel
// distinto devuelve el JRD sin links.
func (p *Publisher) Webfinger(resource string, rels []string) (*JRD, error) {
	if resource == "" {
		return nil, ErrMissingResource
	}
	jrd := &JRD{Subject: resource, Links: []Link{}}
	if len(rels) == 0 || slices.Contains(rels, IssuerRel) {
		jrd.Links = append(jrd.Links, Link{Rel: IssuerRel, Href: p.cfg.Issuer})
	}
	return jrd, nil
}

// compact elimina valores nil, strings vacíos y slices vacíos.
func compact(m map[string]any) map[string]any {
	for k, v := range m {
		if v == nil {
			delete(m, k)
			continue
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.String:
			if rv.Len() == 0 {
				delete(m, k)
			}
		}
	}
	return m
}

func without(in []string, drop string) []string {
	return slices.DeleteFunc(slices.Clone(in), func(s string) bool { return s == drop })
}
