package middleware

import (
	"sync"
	"time"
)

// Defaults for InvalidAuthRateLimiter: 5 failures per IP per minute.
const (
	defaultAuthAttempts = 5
	defaultAuthWindow   = time.Minute
)

// InvalidAuthRateLimiter counts failed authentication attempts per IP. Only
// failures are counted; valid requests never consume the budget.
type InvalidAuthRateLimiter struct {
	mu        sync.Mutex
	attempts  map[string]*attemptInfo
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type attemptInfo struct {
	count   int
	firstAt time.Time
}

// NewInvalidAuthRateLimiter creates a limiter with the default budget.
func NewInvalidAuthRateLimiter() *InvalidAuthRateLimiter {
	return newInvalidAuthRateLimiter(defaultAuthAttempts, defaultAuthWindow, time.Now)
}

func newInvalidAuthRateLimiter(limit int, window time.Duration, now func() time.Time) *InvalidAuthRateLimiter {
	return &InvalidAuthRateLimiter{
		attempts: make(map[string]*attemptInfo),
		limit:    limit,
		window:   window,
		now:      now,
	}
}

// Allow records a failed attempt from ip and reports whether it is still
// within the budget.
func (r *InvalidAuthRateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	info, exists := r.attempts[ip]
	if !exists || now.Sub(info.firstAt) > r.window {
		r.attempts[ip] = &attemptInfo{count: 1, firstAt: now}
		return true
	}

	if info.count >= r.limit {
		return false
	}
	info.count++
	return true
}

// sweep drops stale entries at most once per window. Caller holds r.mu.
func (r *InvalidAuthRateLimiter) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < r.window {
		return
	}
	r.lastSweep = now
	for ip, info := range r.attempts {
		if now.Sub(info.firstAt) > r.window {
			delete(r.attempts, ip)
		}
	}
}
