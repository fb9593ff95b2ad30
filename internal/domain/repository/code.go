package repository

import (
	"context"
	"time"
)

// AuthorizationCode es el registro efímero de un grant authorization_code.
// Code guarda el SHA256 base64url del código; el valor crudo sólo viaja en
// la redirección.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               []string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	IssuedAt            time.Time
	Lifetime            time.Duration
	AuthTime            time.Time
	RevokedAt           *time.Time
}

// ExpiresAt = IssuedAt + Lifetime.
func (c *AuthorizationCode) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.Lifetime)
}

// IsExpired implementa issue_date + lifetime < now.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt().Before(now)
}

// CodeRepository persiste códigos de autorización.
type CodeRepository interface {
	// Create persiste un código. ErrConflict si el hash ya existe.
	Create(ctx context.Context, c AuthorizationCode) error

	// Get busca por hash. ErrNotFound si no existe.
	Get(ctx context.Context, codeHash string) (*AuthorizationCode, error)

	// Delete elimina el código. ErrNotFound si ya fue consumido; el caller
	// usa esto para garantizar single-use.
	Delete(ctx context.Context, codeHash string) error

	// DeleteExpired borra los códigos vencidos y devuelve cuántos.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
