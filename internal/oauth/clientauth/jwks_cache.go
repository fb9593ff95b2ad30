package clientauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
)

// maxJWKSBytes acota el body de un jwks_uri remoto.
const maxJWKSBytes = 1 << 20

type jwksCacheEntry struct {
	set jwk.Set
	exp time.Time
}

// JWKSCache cachea los JWKS remotos de los clients (jwks_uri) por un TTL
// corto. El fetch corre fuera del lock y los fetch concurrentes a la misma
// URI se colapsan en uno.
type JWKSCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	httpc *http.Client
	now   func() time.Time
	group singleflight.Group

	items map[string]jwksCacheEntry // uri -> entry
}

// NewJWKSCache crea el cache. httpc debe tener un Timeout acotado.
func NewJWKSCache(ttl time.Duration, httpc *http.Client) *JWKSCache {
	if httpc == nil {
		httpc = &http.Client{Timeout: 5 * time.Second}
	}
	return &JWKSCache{
		ttl:   ttl,
		httpc: httpc,
		now:   time.Now,
		items: make(map[string]jwksCacheEntry),
	}
}

// Get devuelve el JWKS de uri, desde cache o remoto.
func (c *JWKSCache) Get(ctx context.Context, uri string) (jwk.Set, error) {
	now := c.now()

	c.mu.RLock()
	if e, ok := c.items[uri]; ok && now.Before(e.exp) {
		c.mu.RUnlock()
		metrics.JWKSFetches.WithLabelValues("hit").Inc()
		return e.set, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(uri, func() (any, error) {
		return c.fetch(ctx, uri)
	})
	if err != nil {
		metrics.JWKSFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.JWKSFetches.WithLabelValues("miss").Inc()
	set := v.(jwk.Set)

	c.mu.Lock()
	c.items[uri] = jwksCacheEntry{set: set, exp: now.Add(c.ttl)}
	c.mu.Unlock()
	return set, nil
}

// Invalidate descarta el JWKS cacheado de uri.
func (c *JWKSCache) Invalidate(uri string) {
	c.mu.Lock()
	delete(c.items, uri)
	c.mu.Unlock()
}

func (c *JWKSCache) fetch(ctx context.Context, uri string) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch %s: unexpected status %d", uri, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("jwks read %s: %w", uri, err)
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("jwks parse %s: %w", uri, err)
	}
	return set, nil
}
