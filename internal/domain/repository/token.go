package repository

import (
	"context"
	"slices"
	"time"
)

// TokenTypeBearer es el único tipo emitido.
const TokenTypeBearer = "Bearer"

// Token agrupa un access token y su refresh token opcional. Sólo se guardan
// los hashes.
type Token struct {
	ID               string
	AccessTokenHash  string
	RefreshTokenHash string
	TokenType        string
	ClientID         string
	UserID           string // vacío en client_credentials
	GrantType        string
	Scope            []string
	Audience         []string
	IssuedAt         time.Time
	Lifetime         time.Duration
	RefreshLifetime  time.Duration
	RevokedAt        *time.Time
}

// IsRevoked reporta revocation_date != nil.
func (t *Token) IsRevoked() bool { return t.RevokedAt != nil }

// IsExpired reporta si el access token venció.
func (t *Token) IsExpired(now time.Time) bool {
	return t.IssuedAt.Add(t.Lifetime).Before(now)
}

// IsActive = no revocado y no vencido.
func (t *Token) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// HasRefreshToken reporta si el token tiene refresh.
func (t *Token) HasRefreshToken() bool { return t.RefreshTokenHash != "" }

// IsRefreshTokenActive = refresh presente, no revocado y no vencido.
func (t *Token) IsRefreshTokenActive(now time.Time) bool {
	if !t.HasRefreshToken() || t.IsRevoked() {
		return false
	}
	return !t.IssuedAt.Add(t.RefreshLifetime).Before(now)
}

// IsFullyExpired reporta si tanto el access como el refresh vencieron.
// El sweep sólo borra tokens en este estado.
func (t *Token) IsFullyExpired(now time.Time) bool {
	end := t.IssuedAt.Add(max(t.Lifetime, t.RefreshLifetime))
	return end.Before(now)
}

// InAudience reporta si clientID figura en la audiencia del token.
func (t *Token) InAudience(clientID string) bool {
	return slices.Contains(t.Audience, clientID)
}

// Revoke devuelve una copia revocada. Si ya estaba revocado conserva la
// fecha original.
func (t Token) Revoke(at time.Time) Token {
	if t.RevokedAt != nil {
		return t
	}
	t.RevokedAt = &at
	return t
}

// TokenRepository persiste tokens.
type TokenRepository interface {
	// Create persiste un token nuevo.
	Create(ctx context.Context, t Token) error

	// GetByAccessHash busca por hash del access token. ErrNotFound si no existe.
	GetByAccessHash(ctx context.Context, hash string) (*Token, error)

	// GetByRefreshHash busca por hash del refresh token. ErrNotFound si no existe.
	GetByRefreshHash(ctx context.Context, hash string) (*Token, error)

	// ListByUserClient devuelve los tokens de (user, client).
	ListByUserClient(ctx context.Context, userID, clientID string) ([]Token, error)

	// Update reemplaza un token existente.
	Update(ctx context.Context, t Token) error

	// RevokeIfActive marca revoked_at sólo si el token no estaba revocado.
	// false indica que otro request lo revocó antes.
	RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error)

	// DeleteExpired borra los tokens totalmente vencidos.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
