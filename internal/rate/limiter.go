// Package rate limita requests por clave (IP + ruta). El driver redis usa
// una ventana fija compartida entre réplicas; el de memoria, un token
// bucket por clave.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Result describe la decisión para un hit.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter cuenta hits por ventana fija. La clave incluye el inicio de
// la ventana y expira cuando la ventana termina.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
	Now    func() time.Time
}

// NewRedisLimiter arma las claves como "<prefix>:<key>:<unix>".
func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		Now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.Now().UTC()
	start := now.Truncate(l.Window)
	end := start.Add(l.Window)
	k := l.Prefix + ":" + strings.ReplaceAll(key, " ", "_") + ":" + fmt.Sprint(start.Unix())

	left := end.Sub(now)

	// TTL relativo: el reloj de redis puede no coincidir con Now.
	var incr *rdb.IntCmd
	_, err := l.Client.TxPipelined(ctx, func(p rdb.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, left)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate: redis: %w", err)
	}

	hits := incr.Val()
	res := Result{
		Allowed:     hits <= l.Max,
		Remaining:   max(l.Max-hits, 0),
		CurrentHits: hits,
		WindowTTL:   left,
	}
	if !res.Allowed {
		res.RetryAfter = max(left, time.Second)
	}
	return res, nil
}
