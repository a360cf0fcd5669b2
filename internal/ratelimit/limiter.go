package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Default chat limits: at most 5 messages in any trailing 10 seconds.
const (
	DefaultLimit  = 5
	DefaultWindow = 10 * time.Second
)

// Limiter is a per-key sliding-window counter. It keeps the timestamps of
// admitted events and admits a new one only while fewer than limit of them
// fall inside the trailing window. Bursts up to limit pass at once.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string][]time.Time
}

// New creates a limiter. Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
	}
}

// Limit returns the number of events admitted per window.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the trailing window length.
func (l *Limiter) Window() time.Duration { return l.window }

// TryAdmit records an event for key at now and reports whether it was
// admitted. A rejected event leaves the log as it was after pruning.
func (l *Limiter) TryAdmit(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, now)
	if len(kept) >= l.limit {
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// RetryAfter returns how many whole seconds key must wait before the oldest
// admitted event leaves the window. Zero means the key is not limited.
func (l *Limiter) RetryAfter(key string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, now)
	if len(kept) < l.limit {
		return 0
	}
	remaining := l.window - now.Sub(kept[0])
	secs := int(math.Ceil(float64(remaining.Milliseconds()) / 1000))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Count returns the number of admitted events for key still in the window.
func (l *Limiter) Count(key string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, now))
}

// Forget drops all state for key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Cleanup removes keys whose events have all left the window.
func (l *Limiter) Cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key := range l.entries {
		if len(l.prune(key, now)) == 0 {
			delete(l.entries, key)
		}
	}
}

// prune drops timestamps at least one window old. Caller holds mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	events := l.entries[key]
	kept := events[:0]
	for _, ts := range events {
		if now.Sub(ts) < l.window {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.entries, key)
		return nil
	}
	l.entries[key] = kept
	return kept
}
