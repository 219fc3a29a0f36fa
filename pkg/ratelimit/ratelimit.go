// Package ratelimit keeps one token bucket per caller on top of
// golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// Limiter grants each key limit tokens per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New starts a limiter and its stale-entry sweeper. Call Close to stop it.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		every := rate.Every(l.window / time.Duration(l.limit))
		e = &entry{bucket: rate.NewLimiter(every, l.limit)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.bucket.AllowN(now, 1)
}

// RetryAfter returns how long key must wait for its next token. Unknown
// keys and keys with a token available get zero.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return 0
	}
	deficit := 1 - e.bucket.TokensAt(l.now())
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / float64(e.bucket.Limit()) * float64(time.Second))
}

// Close stops the sweeper and waits for it to exit. Allow keeps working
// afterwards, but idle buckets are no longer dropped.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Limiter) cleanup() {
	defer close(l.done)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets idle for two windows; they would be full again.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
