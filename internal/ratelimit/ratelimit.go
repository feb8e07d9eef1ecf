// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter rate-limits events per key, e.g. per visitor session.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// New creates a limiter allowing perSecond events per key with the given burst.
func New(perSecond float64, burst int) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		limiters: make(map[string]*entry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Cleanup forgets keys idle for longer than idle.
func (l *KeyedLimiter) Cleanup(idle time.Duration) int {
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *KeyedLimiter) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup(idle)
			}
		}
	}()
}
