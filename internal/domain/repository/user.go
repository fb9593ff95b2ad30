package repository

import (
	"context"
	"time"
)

// User es el sujeto autenticado. Profile guarda los atributos crudos que
// alimentan los templates de claims (given_name, family_name, picture, ...).
type User struct {
	ID            string
	Username      string
	Email         string
	EmailVerified bool
	PasswordHash  string // argon2id PHC
	Profile       map[string]string
	Groups        []string // display names
	DisabledAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsLocked reporta si el usuario está deshabilitado.
func (u *User) IsLocked() bool { return u.DisabledAt != nil }

// UserRepository persiste usuarios.
type UserRepository interface {
	// Get obtiene un usuario por id. ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*User, error)

	// GetByUsername busca por username (o email). ErrNotFound si no existe.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create persiste un usuario. ErrConflict si el username existe.
	Create(ctx context.Context, u User) error

	// Update reemplaza un usuario existente.
	Update(ctx context.Context, u User) error
}
