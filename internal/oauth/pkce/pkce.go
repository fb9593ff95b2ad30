// Package pkce valida Proof Key for Code Exchange (RFC7636).
package pkce

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/oauth2"
)

const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

var (
	ErrInvalidMethod   = errors.New("pkce: unsupported code_challenge_method")
	ErrInvalidVerifier = errors.New("pkce: malformed code_verifier")
	ErrMissingVerifier = errors.New("pkce: code_verifier required")
	ErrMismatch        = errors.New("pkce: code_verifier does not match challenge")
)

// ValidMethod reporta si m es un método soportado. Vacío equivale a plain.
func ValidMethod(m string) bool {
	return m == "" || m == MethodPlain || m == MethodS256
}

// ValidVerifier aplica RFC7636 §4.1: 43..128 chars de [A-Za-z0-9-._~].
func ValidVerifier(v string) bool {
	if len(v) < 43 || len(v) > 128 {
		return false
	}
	for _, c := range v {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

// Challenge aplica la transformación de method al verifier.
func Challenge(method, verifier string) (string, error) {
	switch method {
	case MethodS256:
		return oauth2.S256ChallengeFromVerifier(verifier), nil
	case MethodPlain, "":
		return verifier, nil
	default:
		return "", ErrInvalidMethod
	}
}

// Verify recalcula el challenge del verifier y compara en tiempo constante.
// Sin challenge almacenado no hay nada que verificar.
func Verify(challenge, method, verifier string) error {
	if challenge == "" {
		return nil
	}
	if verifier == "" {
		return ErrMissingVerifier
	}
	if !ValidVerifier(verifier) {
		return ErrInvalidVerifier
	}
	computed, err := Challenge(method, verifier)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return ErrMismatch
	}
	return nil
}
