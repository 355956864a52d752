// Package ratelimit provides a fixed-window in-memory rate limiter.
package ratelimit

import (
	"sync"
	"time"
)

const gcThreshold = 5000

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in fixed windows. It is constructed once at
// startup and shared by reference; all methods are safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a Limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Take records one request against key and reports whether it is within
// limit for the current window.
func (l *Limiter) Take(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	existing, ok := l.buckets[key]
	if !ok || !now.Before(existing.resetAt) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(window)}
		l.garbageCollect(now)
		return true
	}

	if existing.count >= limit {
		return false
	}
	existing.count++
	return true
}

func (l *Limiter) garbageCollect(now time.Time) {
	if len(l.buckets) < gcThreshold {
		return
	}
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}
