package repository

import (
	"context"
	"time"
)

// KeyStatus indica el estado de una clave de firma.
type KeyStatus string

const (
	// KeyStatusActive firma y se publica.
	KeyStatusActive KeyStatus = "active"
	// KeyStatusRetiring ya no firma pero sigue publicada para verificar.
	KeyStatusRetiring KeyStatus = "retiring"
	// KeyStatusRetired no se publica.
	KeyStatusRetired KeyStatus = "retired"
)

// SigningKey es material de firma del servidor en PEM (PKCS8 / PKIX).
type SigningKey struct {
	KID        string
	Algorithm  string // "EdDSA" | "RS256"
	PrivatePEM []byte
	PublicPEM  []byte
	Status     KeyStatus
	CreatedAt  time.Time
	RotatedAt  *time.Time
}

// KeyRepository persiste claves de firma.
type KeyRepository interface {
	// GetActive devuelve la clave activa. ErrNotFound si no hay ninguna.
	GetActive(ctx context.Context) (*SigningKey, error)

	// ListPublished devuelve active + retiring.
	ListPublished(ctx context.Context) ([]SigningKey, error)

	// Rotate marca la activa actual como retiring, las retiring como retired
	// e inserta next como activa.
	Rotate(ctx context.Context, next SigningKey) error
}
