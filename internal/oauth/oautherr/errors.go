// Package oautherr define el error de protocolo OAuth2/OIDC y su
// serialización RFC6749 §5.2 ({"error","error_description"}).
package oautherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Códigos RFC6749 / RFC7009 / RFC7591 / OIDC Core.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeInvalidScope            = "invalid_scope"
	CodeAccessDenied            = "access_denied"
	CodeServerError             = "server_error"
	CodeInvalidToken            = "invalid_token"
	CodeUnsupportedTokenType    = "unsupported_token_type"
	CodeLoginRequired           = "login_required"
	CodeConsentRequired         = "consent_required"
	CodeRequestNotSupported     = "request_not_supported"
	CodeRequestURINotSupported  = "request_uri_not_supported"
	CodeInvalidRedirectURI      = "invalid_redirect_uri"
	CodeInvalidClientMetadata   = "invalid_client_metadata"
)

// Error es un error de protocolo. Err es la causa interna: se loguea pero
// nunca se serializa.
type Error struct {
	Code        string
	Description string
	Status      int
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara por código, así errors.Is(err, oautherr.InvalidGrant("")) funciona.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New crea un error con status explícito.
func New(status int, code, description string) *Error {
	return &Error{Code: code, Description: description, Status: status}
}

// WithCause devuelve una copia con la causa interna.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// From convierte cualquier error en *Error. Lo que no es de protocolo
// termina como server_error sin exponer el texto original.
func From(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return ServerError(err)
}

// HasCode reporta si err es un *Error con ese código.
func HasCode(err error, code string) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Code == code
}

func InvalidRequest(desc string) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, desc)
}

// InvalidClient es 401: el caller intentó autenticarse y falló.
func InvalidClient(desc string) *Error {
	return New(http.StatusUnauthorized, CodeInvalidClient, desc)
}

// UnknownClient es invalid_client 400 para endpoints sin autenticación
// (authorize) donde no aplica WWW-Authenticate.
func UnknownClient(desc string) *Error {
	return New(http.StatusBadRequest, CodeInvalidClient, desc)
}

func InvalidGrant(desc string) *Error {
	return New(http.StatusBadRequest, CodeInvalidGrant, desc)
}

func UnauthorizedClient(desc string) *Error {
	return New(http.StatusBadRequest, CodeUnauthorizedClient, desc)
}

func UnsupportedGrantType(desc string) *Error {
	return New(http.StatusBadRequest, CodeUnsupportedGrantType, desc)
}

func UnsupportedResponseType(desc string) *Error {
	return New(http.StatusBadRequest, CodeUnsupportedResponseType, desc)
}

func InvalidScope(desc string) *Error {
	return New(http.StatusBadRequest, CodeInvalidScope, desc)
}

func AccessDenied(desc string) *Error {
	return New(http.StatusForbidden, CodeAccessDenied, desc)
}

func InvalidToken(desc string) *Error {
	return New(http.StatusUnauthorized, CodeInvalidToken, desc)
}

func InvalidRedirectURI(desc string) *Error {
	return New(http.StatusBadRequest, CodeInvalidRedirectURI, desc)
}

func InvalidClientMetadata(desc string) *Error {
	return New(http.StatusBadRequest, CodeInvalidClientMetadata, desc)
}

// ServerError envuelve una falla interna (storage, crypto).
func ServerError(cause error) *Error {
	return &Error{
		Code:        CodeServerError,
		Description: "the authorization server encountered an unexpected condition",
		Status:      http.StatusInternalServerError,
		Err:         cause,
	}
}
