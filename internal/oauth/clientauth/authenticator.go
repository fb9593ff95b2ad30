// Package clientauth autentica clients en los endpoints token, introspect
// y revoke: client_secret_basic, client_secret_post, none y
// private_key_jwt (RFC7523).
package clientauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/oautherr"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/security/password"
)

// Origen de las credenciales presentadas.
const (
	SourceBasic     = "basic"
	SourcePost      = "post"
	SourceNone      = "none"
	SourceAssertion = "assertion"
)

// Credentials es lo que el caller presentó en el request.
type Credentials struct {
	ClientID      string
	Secret        string
	Source        string
	AssertionType string
	Assertion     string
}

// FromRequest extrae las credenciales del request. Presentar más de un
// método es invalid_request (RFC6749 §2.3).
func FromRequest(r *http.Request) (Credentials, error) {
	var c Credentials
	formID := r.PostFormValue("client_id")
	formSecret := r.PostFormValue("client_secret")
	assertion := r.PostFormValue("client_assertion")

	if user, pass, ok := r.BasicAuth(); ok {
		if formSecret != "" || assertion != "" {
			return c, oautherr.InvalidRequest("multiple client authentication methods")
		}
		// RFC6749 §2.3.1: id y secret van form-urlencoded dentro de Basic.
		id, err1 := url.QueryUnescape(user)
		secret, err2 := url.QueryUnescape(pass)
		if err1 != nil || err2 != nil {
			return c, oautherr.InvalidRequest("malformed basic credentials")
		}
		if formID != "" && formID != id {
			return c, oautherr.InvalidRequest("client_id mismatch")
		}
		return Credentials{ClientID: id, Secret: secret, Source: SourceBasic}, nil
	}

	switch {
	case assertion != "":
		if formSecret != "" {
			return c, oautherr.InvalidRequest("multiple client authentication methods")
		}
		return Credentials{
			ClientID:      formID,
			Source:        SourceAssertion,
			AssertionType: r.PostFormValue("client_assertion_type"),
			Assertion:     assertion,
		}, nil
	case formSecret != "":
		return Credentials{ClientID: formID, Secret: formSecret, Source: SourcePost}, nil
	case formID != "":
		return Credentials{ClientID: formID, Source: SourceNone}, nil
	default:
		// Sin credenciales: Authenticate falla, salvo grants que identifican
		// al client por la assertion (jwt-bearer).
		return c, nil
	}
}

// Authenticator resuelve y autentica al client que hace el request.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*repository.Client, error)
}

// Deps contiene las dependencias del authenticator.
type Deps struct {
	Clients repository.ClientRepository
	// Assertions nil deshabilita private_key_jwt (issuer no configurado).
	Assertions *AssertionVerifier
}

type authenticator struct {
	deps Deps
}

// NewAuthenticator crea el authenticator.
func NewAuthenticator(deps Deps) Authenticator {
	return &authenticator{deps: deps}
}

var errBadCredentials = errors.New("bad client credentials")

func (a *authenticator) Authenticate(ctx context.Context, creds Credentials) (*repository.Client, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("clientauth.Authenticate"))

	client, err := a.authenticate(ctx, creds)
	if err != nil {
		metrics.ClientAuthFailures.WithLabelValues(creds.Source).Inc()
		log.Warn("client authentication failed",
			logger.ClientID(creds.ClientID), logger.AuthMethod(creds.Source), logger.Err(err))
		var oe *oautherr.Error
		if errors.As(err, &oe) {
			return nil, oe
		}
		return nil, oautherr.InvalidClient("client authentication failed").WithCause(err)
	}
	return client, nil
}

func (a *authenticator) authenticate(ctx context.Context, creds Credentials) (*repository.Client, error) {
	if creds.Source == SourceAssertion {
		return a.authenticateAssertion(ctx, creds)
	}
	if creds.ClientID == "" {
		return nil, errBadCredentials
	}

	client, err := a.deps.Clients.Get(ctx, creds.ClientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errBadCredentials
		}
		return nil, oautherr.ServerError(err)
	}

	switch creds.Source {
	case SourceNone:
		if !client.IsPublic() {
			return nil, errBadCredentials
		}
		return client, nil
	case SourceBasic, SourcePost:
		if !client.HasClientSecret() {
			return nil, errBadCredentials
		}
		switch client.TokenEndpointAuthMethod {
		case repository.AuthMethodSecretBasic, repository.AuthMethodSecretPost:
		default:
			return nil, errBadCredentials
		}
		if !password.Verify(creds.Secret, client.SecretHash) {
			return nil, errBadCredentials
		}
		return client, nil
	default:
		return nil, errBadCredentials
	}
}

func (a *authenticator) authenticateAssertion(ctx context.Context, creds Credentials) (*repository.Client, error) {
	if a.deps.Assertions == nil {
		return nil, errors.New("jwt client authentication disabled: issuer not configured")
	}
	if creds.AssertionType != AssertionType {
		return nil, errors.New("unsupported client_assertion_type")
	}

	iss, sub, err := Unverified(creds.Assertion)
	if err != nil {
		return nil, err
	}
	if iss == "" || iss != sub {
		return nil, ErrIssuerMismatch
	}
	if creds.ClientID != "" && creds.ClientID != iss {
		return nil, ErrIssuerMismatch
	}

	client, err := a.deps.Clients.Get(ctx, iss)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errBadCredentials
		}
		return nil, oautherr.ServerError(err)
	}
	if client.TokenEndpointAuthMethod != repository.AuthMethodPrivateKey {
		return nil, errBadCredentials
	}

	if _, err := a.deps.Assertions.Verify(ctx, client, creds.Assertion); err != nil {
		if errors.Is(err, ErrReplayedJTI) {
			return nil, oautherr.InvalidClient(ErrReplayedJTI.Error()).WithCause(err)
		}
		return nil, err
	}
	return client, nil
}
