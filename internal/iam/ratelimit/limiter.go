// Package ratelimit throttles login attempts with a per-key token bucket.
// Keys combine tenant, email, and client IP so one caller cannot exhaust
// another's budget.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per key. Stale buckets are dropped by
// the background sweep.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	rate     rate.Limit
	burst    int
}

// New builds a limiter allowing perMinute sustained attempts with the given
// burst. The sweep goroutine stops when stop is closed.
func New(perMinute float64, burst int, stop <-chan struct{}) *Limiter {
	l := &Limiter{
		limiters: make(map[string]*keyedLimiter),
		rate:     rate.Limit(perMinute / 60.0),
		burst:    burst,
	}
	go l.sweep(stop)
	return l
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = kl
	}
	kl.lastSeen = time.Now()
	l.mu.Unlock()
	return kl.limiter.Allow()
}

func (l *Limiter) sweep(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			l.mu.Lock()
			for key, kl := range l.limiters {
				if kl.lastSeen.Before(cutoff) {
					delete(l.limiters, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
