// Package ratelimit provides the fixed-window per-principal limiter that
// caps AI-triggering requests.
package ratelimit

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Limiter counts AI-triggering requests per principal over a fixed
// window. Counters decay with the window; nothing is persisted.
type Limiter struct {
	quota  int
	window time.Duration

	mu       sync.Mutex
	counters *gocache.Cache
}

type windowCounter struct {
	count    int
	resetsAt time.Time
}

// New creates a limiter allowing quota requests per window per key.
func New(quota int, window time.Duration) *Limiter {
	return &Limiter{
		quota:    quota,
		window:   window,
		counters: gocache.New(window, window),
	}
}

// Allow records one request for key and reports whether it fits in the
// current window. When the request is rejected, retryAfter is the time
// remaining until the window resets.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var wc *windowCounter
	if v, found := l.counters.Get(key); found {
		wc = v.(*windowCounter)
		if now.After(wc.resetsAt) {
			wc = nil
		}
	}
	if wc == nil {
		wc = &windowCounter{resetsAt: now.Add(l.window)}
		l.counters.Set(key, wc, l.window)
	}

	if wc.count >= l.quota {
		return false, time.Until(wc.resetsAt)
	}
	wc.count++
	return true, 0
}

// Remaining reports how many requests key may still make in the current
// window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, found := l.counters.Get(key)
	if !found {
		return l.quota
	}
	wc := v.(*windowCounter)
	if time.Now().After(wc.resetsAt) {
		return l.quota
	}
	if left := l.quota - wc.count; left > 0 {
		return left
	}
	return 0
}
