package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks request counts per key (an IP) within a sliding window.
type Limiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	max     int
	window  time.Duration
}

// New creates a Limiter allowing max requests per window per key.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		entries: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow returns true if the key has not exceeded the rate limit.
// If allowed, the request is recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	timestamps := l.entries[key]
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.max {
		l.entries[key] = valid
		return false
	}

	l.entries[key] = append(valid, now)
	return true
}

// Prune drops keys whose every recorded request has left the window.
// Callers run this periodically to keep the map from growing with
// one-off clients.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	for key, timestamps := range l.entries {
		stale := true
		for _, t := range timestamps {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.entries, key)
		}
	}
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
