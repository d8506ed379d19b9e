package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key (client address, premium source host).
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	idle  time.Duration
	nowFn func() time.Time
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*entry), idle: 10 * time.Minute, nowFn: time.Now}
}

func (l *Limiter) get(key string, burst int, perSec float64) *rate.Limiter {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.m[key]
	if !ok {
		if burst < 1 {
			burst = 1
		}
		e = &entry{lim: rate.NewLimiter(rate.Limit(perSec), burst)}
		l.m[key] = e
	}
	e.seen = now

	// opportunistic sweep of idle buckets
	if len(l.m) > 1024 {
		for k, v := range l.m {
			if now.Sub(v.seen) > l.idle {
				delete(l.m, k)
			}
		}
	}
	return e.lim
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, burst int, perSec float64) bool {
	return l.get(key, burst, perSec).Allow()
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string, burst int, perSec float64) error {
	return l.get(key, burst, perSec).Wait(ctx)
}
