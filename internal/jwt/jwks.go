package jwt

import (
	"context"

	"github.com/go-jose/go-jose/v4"
)

// JWKS arma el key set público (active + retiring).
func (k *Keystore) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	verifying, err := k.Verifying(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(verifying))}
	for _, key := range verifying {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       key.Pub,
			KeyID:     key.KID,
			Algorithm: key.Alg,
			Use:       "sig",
		})
	}
	return set, nil
}
