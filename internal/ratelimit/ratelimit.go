// Package ratelimit provides a small sliding-window limiter, used to cap
// room creation per client IP.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows up to max events per key within a sliding window.
type Limiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
	max     int
	window  time.Duration
}

// New creates a Limiter allowing max events per window for each key.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		history: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow reports whether the key may perform another event now, recording
// it if so. Expired events fall out of the window as a side effect.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	events := l.history[key]

	live := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}

	if len(live) >= l.max {
		l.history[key] = live
		return false
	}

	l.history[key] = append(live, time.Now())
	return true
}

// Reset forgets all recorded events for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.history, key)
	l.mu.Unlock()
}
