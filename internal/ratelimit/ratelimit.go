package ratelimit

import (
	"sync"
	"time"
)

// bucket is the token state for one key.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Result describes the outcome of a Take.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a token bucket limiter keyed by client (IP address or user
// id). Every key gets rate tokens per window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter allowing rate requests per window. A rate of zero
// disables limiting.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate > 0
}

// Take consumes a token for key when one is available.
func (l *Limiter) Take(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.rate), lastSeen: now}
		l.buckets[key] = b
	}

	perSecond := float64(l.rate) / l.window.Seconds()
	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens = min(float64(l.rate), b.tokens+elapsed*perSecond)
	}
	b.lastSeen = now

	res := Result{Limit: l.rate}
	if b.tokens >= 1 {
		b.tokens--
		res.Allowed = true
	}
	res.Remaining = max(0, int(b.tokens))

	if deficit := float64(l.rate) - b.tokens; deficit > 0 {
		res.ResetAt = now.Add(time.Duration(deficit / perSecond * float64(time.Second)))
	} else {
		res.ResetAt = now
	}
	return res
}

// Sweep drops buckets idle for longer than a window; they would be full
// again anyway.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
