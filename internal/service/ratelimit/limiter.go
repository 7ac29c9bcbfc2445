package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token-bucket limiter per key (typically client IP
// plus endpoint). Buckets are created lazily on first use.
type Limiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*rate.Limiter)}
}

// Allow reports whether one event may proceed for key, refilling at
// refillPerSec with the given burst capacity.
func (l *Limiter) Allow(key string, burst, refillPerSec float64) bool {
	l.mu.Lock()
	lim, ok := l.m[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(refillPerSec), int(burst))
		l.m[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
