package repository

import (
	"context"
	"slices"
	"time"
)

// Consent es el permiso vigente de un usuario hacia un client.
// IssuedAt nil significa que nunca se emitió (consent implícito restaurado).
type Consent struct {
	ID        string
	UserID    string
	ClientID  string
	Scope     []string
	IssuedAt  *time.Time
	RevokedAt *time.Time
}

// IsActive reporta si el consent no está revocado.
func (c *Consent) IsActive() bool { return c.RevokedAt == nil }

// Covers reporta si el consent activo cubre todo el scope pedido.
func (c *Consent) Covers(scope []string) bool {
	return c.IsActive() && ScopeSubset(scope, c.Scope)
}

// WithScope devuelve una copia con el scope unido.
func (c Consent) WithScope(scope []string) Consent {
	c.Scope = ScopeUnion(c.Scope, scope)
	return c
}

// Revoke devuelve una copia revocada; la fecha original se conserva.
func (c Consent) Revoke(at time.Time) Consent {
	if c.RevokedAt == nil {
		c.RevokedAt = &at
	}
	return c
}

// Restore limpia la revocación y fija IssuedAt si nunca se había emitido.
func (c Consent) Restore(at time.Time) Consent {
	c.RevokedAt = nil
	if c.IssuedAt == nil {
		c.IssuedAt = &at
	}
	c.Scope = slices.Clone(c.Scope)
	return c
}

// ConsentRepository persiste consents.
type ConsentRepository interface {
	// Get obtiene un consent por id. ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*Consent, error)

	// ListByUserClient devuelve todos los consents (activos o no) de (user, client).
	ListByUserClient(ctx context.Context, userID, clientID string) ([]Consent, error)

	// ListByUser devuelve los consents de un usuario.
	ListByUser(ctx context.Context, userID string) ([]Consent, error)

	// Create persiste un consent nuevo.
	Create(ctx context.Context, c Consent) error

	// Update reemplaza un consent existente.
	Update(ctx context.Context, c Consent) error
}
