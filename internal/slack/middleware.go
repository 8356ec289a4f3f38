package slack

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Middleware provides rate limiting and admin checks.
type Middleware struct {
	logger      zerolog.Logger
	rateLimiter *RateLimiter
	admins      map[string]bool
}

// NewMiddleware creates a new middleware instance. An empty admin list means
// nobody may run admin commands.
func NewMiddleware(logger zerolog.Logger, maxRequests int, window time.Duration, admins []string) *Middleware {
	set := make(map[string]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	return &Middleware{
		logger:      logger.With().Str("component", "slack.middleware").Logger(),
		rateLimiter: NewRateLimiter(maxRequests, window),
		admins:      set,
	}
}

// Allow returns true if the user is within rate limits.
func (m *Middleware) Allow(userID string) bool {
	allowed := m.rateLimiter.Allow(userID)
	if !allowed {
		m.logger.Warn().Str("user_id", userID).Msg("rate limited")
	}
	return allowed
}

// IsAdmin reports whether userID may run admin commands.
func (m *Middleware) IsAdmin(userID string) bool {
	return m.admins[userID]
}

// RateLimiter implements a simple sliding window rate limiter per user.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	now         func() time.Time
}

// NewRateLimiter creates a new rate limiter. maxRequests <= 0 disables it.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow checks if a request from the given key is allowed.
func (r *RateLimiter) Allow(key string) bool {
	if r.maxRequests <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	valid := r.requests[key][:0]
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[key] = valid
		return false
	}

	r.requests[key] = append(valid, now)
	return true
}

// Prune forgets keys with no requests inside the window.
func (r *RateLimiter) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	n := 0
	for key, times := range r.requests {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(r.requests, key)
			n++
		}
	}
	return n
}

// Prune drops idle rate limiter state.
func (m *Middleware) Prune() int {
	return m.rateLimiter.Prune()
}
