package registration

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/grant"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/validation"
)

// Metadata es la metadata de client de RFC7591 §2 que acepta el servidor.
type Metadata struct {
	RedirectURIs              []string        `json:"redirect_uris" validate:"required,min=1,max=20,dive,required,url"`
	PostLogoutRedirectURIs    []string        `json:"post_logout_redirect_uris,omitempty" validate:"omitempty,max=20,dive,url"`
	ClientName                string          `json:"client_name,omitempty" validate:"max=256"`
	TokenEndpointAuthMethod   string          `json:"token_endpoint_auth_method,omitempty" validate:"omitempty,oneof=client_secret_basic client_secret_post private_key_jwt none"`
	GrantTypes                []string        `json:"grant_types,omitempty" validate:"omitempty,dive,grant_type"`
	ResponseTypes             []string        `json:"response_types,omitempty" validate:"omitempty,dive,response_type"`
	Scope                     string          `json:"scope,omitempty" validate:"max=1024"`
	JWKS                      json.RawMessage `json:"jwks,omitempty"`
	JWKSURI                   string          `json:"jwks_uri,omitempty" validate:"omitempty,url,startswith=https://"`
	SoftwareID                string          `json:"software_id,omitempty" validate:"max=256"`
	SoftwareVersion           string          `json:"software_version,omitempty" validate:"max=64"`
	UserinfoSignedResponseAlg string          `json:"userinfo_signed_response_alg,omitempty" validate:"omitempty,oneof=EdDSA RS256"`
}

var supportedGrantTypes = []string{
	grant.TypeAuthorizationCode,
	grant.TypeRefreshToken,
	grant.TypeClientCredentials,
	grant.TypePassword,
	grant.TypeImplicit,
	grant.TypeJWTBearer,
}

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("grant_type", func(fl validator.FieldLevel) bool {
		return slices.Contains(supportedGrantTypes, fl.Field().String())
	})
	_ = validate.RegisterValidation("response_type", func(fl validator.FieldLevel) bool {
		norm := repository.NormalizeResponseType(fl.Field().String())
		return slices.ContainsFunc(grant.ResponseTypesSupported, func(rt string) bool {
			return repository.NormalizeResponseType(rt) == norm
		})
	})
}

// applyDefaults completa lo omitido según RFC7591 §2.
func (m *Metadata) applyDefaults() {
	if m.TokenEndpointAuthMethod == "" {
		m.TokenEndpointAuthMethod = repository.AuthMethodSecretBasic
	}
	if len(m.GrantTypes) == 0 {
		m.GrantTypes = []string{grant.TypeAuthorizationCode}
	}
	if len(m.ResponseTypes) == 0 && slices.Contains(m.GrantTypes, grant.TypeAuthorizationCode) {
		m.ResponseTypes = []string{"code"}
	}
}

// check valida la metadata ya con defaults. Los errores sobre
// redirect_uris son invalid_redirect_uri; el resto invalid_client_metadata.
func (m *Metadata) check(supportedScopes []string) error {
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			desc := fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag())
			if strings.HasPrefix(fe.StructField(), "RedirectURIs") {
				return oautherr.InvalidRedirectURI(desc)
			}
			return oautherr.InvalidClientMetadata(desc)
		}
		return oautherr.InvalidClientMetadata("metadata is invalid")
	}

	for _, u := range m.RedirectURIs {
		if err := checkRedirectURI(u); err != nil {
			return oautherr.InvalidRedirectURI(err.Error())
		}
	}

	if len(m.JWKS) > 0 && m.JWKSURI != "" {
		return oautherr.InvalidClientMetadata("jwks and jwks_uri are mutually exclusive")
	}
	if len(m.JWKS) > 0 {
		if _, err := jwk.Parse(m.JWKS); err != nil {
			return oautherr.InvalidClientMetadata("jwks is not a valid JWK Set")
		}
	}
	if m.TokenEndpointAuthMethod == repository.AuthMethodPrivateKey && len(m.JWKS) == 0 && m.JWKSURI == "" {
		return oautherr.InvalidClientMetadata("private_key_jwt requires jwks or jwks_uri")
	}
	if m.TokenEndpointAuthMethod == repository.AuthMethodNone && slices.Contains(m.GrantTypes, grant.TypeClientCredentials) {
		return oautherr.InvalidClientMetadata("public clients cannot use client_credentials")
	}

	// response_types y grant_types deben ser consistentes (RFC7591 §2.1).
	for _, rt := range m.ResponseTypes {
		parts := strings.Fields(rt)
		if slices.Contains(parts, "code") && !slices.Contains(m.GrantTypes, grant.TypeAuthorizationCode) {
			return oautherr.InvalidClientMetadata("response_type code requires the authorization_code grant")
		}
		if (slices.Contains(parts, "token") || slices.Contains(parts, "id_token")) && !slices.Contains(m.GrantTypes, grant.TypeImplicit) {
			return oautherr.InvalidClientMetadata("response_type " + rt + " requires the implicit grant")
		}
	}
	if slices.Contains(m.GrantTypes, grant.TypeAuthorizationCode) && !slices.ContainsFunc(m.ResponseTypes, func(rt string) bool {
		return slices.Contains(strings.Fields(rt), "code")
	}) {
		return oautherr.InvalidClientMetadata("authorization_code grant requires a code response_type")
	}

	if v, bad := validation.FirstInvalidScope(repository.ParseScope(m.Scope)); bad {
		return oautherr.InvalidClientMetadata(fmt.Sprintf("scope value %q is not a valid scope-token", v))
	}
	if s := repository.ParseScope(m.Scope); len(s) > 0 && len(supportedScopes) > 0 && !repository.ScopeSubset(s, supportedScopes) {
		return oautherr.InvalidClientMetadata("scope contains unsupported values")
	}
	return nil
}

// checkRedirectURI exige URI absoluta y sin fragment (RFC6749 §3.1.2).
func checkRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("redirect_uri %q is not an absolute URI", raw)
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return fmt.Errorf("redirect_uri %q has no host", raw)
	}
	if u.Fragment != "" || strings.Contains(raw, "#") {
		return fmt.Errorf("redirect_uri %q must not contain a fragment", raw)
	}
	return nil
}
