package jwt

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// Algoritmos de firma soportados para claves del servidor.
const (
	AlgEdDSA = "EdDSA"
	AlgRS256 = "RS256"
)

var ErrUnsupportedAlg = errors.New("jwt: unsupported signing algorithm")

// Key es una clave de firma decodificada y lista para usar.
type Key struct {
	KID    string
	Alg    string
	Status repository.KeyStatus
	Priv   crypto.Signer
	Pub    crypto.PublicKey
}

// Method devuelve el jwt.SigningMethod que corresponde a Alg.
func (k *Key) Method() jwtv5.SigningMethod {
	return jwtv5.GetSigningMethod(k.Alg)
}

// GenerateKey crea material nuevo para alg. El KID es el thumbprint
// RFC7638 de la clave pública.
func GenerateKey(alg string) (repository.SigningKey, error) {
	var priv crypto.Signer
	switch alg {
	case AlgEdDSA, "":
		alg = AlgEdDSA
		_, p, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return repository.SigningKey{}, err
		}
		priv = p
	case AlgRS256:
		p, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return repository.SigningKey{}, err
		}
		priv = p
	default:
		return repository.SigningKey{}, fmt.Errorf("%w: %s", ErrUnsupportedAlg, alg)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return repository.SigningKey{}, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return repository.SigningKey{}, err
	}
	thumb, err := (&jose.JSONWebKey{Key: priv.Public()}).Thumbprint(crypto.SHA256)
	if err != nil {
		return repository.SigningKey{}, err
	}

	return repository.SigningKey{
		KID:        base64.RawURLEncoding.EncodeToString(thumb),
		Algorithm:  alg,
		PrivatePEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
		PublicPEM:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
		Status:     repository.KeyStatusActive,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// decodeKey parsea el PEM persistido.
func decodeKey(rec repository.SigningKey) (*Key, error) {
	block, _ := pem.Decode(rec.PrivatePEM)
	if block == nil {
		return nil, fmt.Errorf("jwt: key %s: invalid private PEM", rec.KID)
	}
	raw, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwt: key %s: %w", rec.KID, err)
	}
	signer, ok := raw.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("jwt: key %s: not a signer", rec.KID)
	}
	switch signer.(type) {
	case ed25519.PrivateKey:
		if rec.Algorithm != AlgEdDSA {
			return nil, fmt.Errorf("%w: %s with ed25519 key", ErrUnsupportedAlg, rec.Algorithm)
		}
	case *rsa.PrivateKey:
		if rec.Algorithm != AlgRS256 {
			return nil, fmt.Errorf("%w: %s with rsa key", ErrUnsupportedAlg, rec.Algorithm)
		}
	default:
		return nil, fmt.Errorf("%w: key type %T", ErrUnsupportedAlg, signer)
	}
	return &Key{
		KID:    rec.KID,
		Alg:    rec.Algorithm,
		Status: rec.Status,
		Priv:   signer,
		Pub:    signer.Public(),
	}, nil
}
