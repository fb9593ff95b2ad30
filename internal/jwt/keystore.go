package jwt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/audit"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

var (
	ErrNoActiveKey = errors.New("no_active_signing_key")
	ErrKIDNotFound = errors.New("kid_not_found")
)

// Keystore mantiene cache local de las claves publicadas y lee del
// repositorio cuando vence.
type Keystore struct {
	repo repository.KeyRepository
	ttl  time.Duration

	mu         sync.RWMutex
	active     *Key
	verifying  []*Key
	cacheUntil time.Time
}

// NewKeystore crea un keystore con cache de 30s.
func NewKeystore(repo repository.KeyRepository) *Keystore {
	return &Keystore{repo: repo, ttl: 30 * time.Second}
}

// EnsureBootstrap genera una clave activa si no hay ninguna.
func (k *Keystore) EnsureBootstrap(ctx context.Context, alg string) error {
	_, err := k.repo.GetActive(ctx)
	if err == nil {
		return nil
	}
	if !repository.IsNotFound(err) {
		return err
	}
	_, err = k.Rotate(ctx, alg)
	return err
}

// Rotate genera una clave nueva, la activa y pasa la anterior a retiring.
func (k *Keystore) Rotate(ctx context.Context, alg string) (string, error) {
	next, err := GenerateKey(alg)
	if err != nil {
		return "", err
	}
	if err := k.repo.Rotate(ctx, next); err != nil {
		return "", err
	}
	k.Invalidate()
	audit.Log(ctx, audit.KeyRotated, logger.KID(next.KID), logger.String("alg", alg))
	return next.KID, nil
}

// Invalidate fuerza recarga en el próximo acceso.
func (k *Keystore) Invalidate() {
	k.mu.Lock()
	k.cacheUntil = time.Time{}
	k.mu.Unlock()
}

func (k *Keystore) load(ctx context.Context) (*Key, []*Key, error) {
	k.mu.RLock()
	if time.Now().Before(k.cacheUntil) {
		defer k.mu.RUnlock()
		return k.active, k.verifying, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if time.Now().Before(k.cacheUntil) {
		return k.active, k.verifying, nil
	}

	recs, err := k.repo.ListPublished(ctx)
	if err != nil {
		return nil, nil, err
	}
	var active *Key
	verifying := make([]*Key, 0, len(recs))
	for _, rec := range recs {
		key, err := decodeKey(rec)
		if err != nil {
			return nil, nil, err
		}
		if rec.Status == repository.KeyStatusActive {
			active = key
		}
		verifying = append(verifying, key)
	}
	k.active = active
	k.verifying = verifying
	k.cacheUntil = time.Now().Add(k.ttl)
	return active, verifying, nil
}

// Active devuelve la clave que firma.
func (k *Keystore) Active(ctx context.Context) (*Key, error) {
	active, _, err := k.load(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveKey
	}
	return active, nil
}

// Verifying devuelve active + retiring.
func (k *Keystore) Verifying(ctx context.Context) ([]*Key, error) {
	_, verifying, err := k.load(ctx)
	return verifying, err
}

// PublicKeyByKID busca entre las claves publicadas. Si el kid no está en
// cache se recarga una vez (otra réplica pudo haber rotado).
func (k *Keystore) PublicKeyByKID(ctx context.Context, kid string) (*Key, error) {
	for attempt := 0; attempt < 2; attempt++ {
		_, verifying, err := k.load(ctx)
		if err != nil {
			return nil, err
		}
		for _, key := range verifying {
			if key.KID == kid {
				return key, nil
			}
		}
		k.Invalidate()
	}
	return nil, ErrKIDNotFound
}
