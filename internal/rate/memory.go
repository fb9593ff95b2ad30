package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// MemoryLimiter mantiene un token bucket por clave: Max requests por
// Window con burst Max. Para una sola réplica.
type MemoryLimiter struct {
	Max    int
	Window time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	sweptAt time.Time
}

type bucket struct {
	lim  *xrate.Limiter
	seen time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:     max,
		Window:  window,
		Now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		every := l.Window / time.Duration(max(l.Max, 1))
		b = &bucket{lim: xrate.NewLimiter(xrate.Every(every), l.Max)}
		l.buckets[key] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return Result{Allowed: false, RetryAfter: l.Window}, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: d, WindowTTL: l.Window}, nil
	}
	return Result{
		Allowed:   true,
		Remaining: int64(b.lim.TokensAt(now)),
		WindowTTL: l.Window,
	}, nil
}

// sweep descarta buckets sin uso por más de una ventana.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.sweptAt) < l.Window {
		return
	}
	l.sweptAt = now
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.Window {
			delete(l.buckets, k)
		}
	}
}
