package mgmt

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	bucketIdleTTL  = 10 * time.Minute
	bucketPruneGap = 5 * time.Minute
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	RPS   int // requests per second
	Burst int // burst size
}

type rateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*tokenBucket
	rps       int
	burst     int
	now       func() time.Time
	lastPrune time.Time
}

type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = cfg.RPS
	}
	return &rateLimiter{
		clients:   make(map[string]*tokenBucket),
		rps:       cfg.RPS,
		burst:     burst,
		now:       time.Now,
		lastPrune: time.Now(),
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) > bucketPruneGap {
		rl.pruneLocked(now)
	}

	bucket, ok := rl.clients[key]
	if !ok {
		bucket = &tokenBucket{
			tokens:     float64(rl.burst),
			maxTokens:  float64(rl.burst),
			refillRate: float64(rl.rps),
			lastRefill: now,
		}
		rl.clients[key] = bucket
	}
	return bucket.allow(now)
}

func (rl *rateLimiter) pruneLocked(now time.Time) {
	for k, v := range rl.clients {
		if now.Sub(v.lastRefill) > bucketIdleTTL {
			delete(rl.clients, k)
		}
	}
	rl.lastPrune = now
}

// NewRateLimitMiddleware returns a per-client token-bucket rate limiter.
// Idle buckets are dropped lazily on the request path.
func NewRateLimitMiddleware(cfg RateLimitConfig) fiber.Handler {
	return newRateLimiter(cfg).middleware()
}

func (rl *rateLimiter) middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if isProbe(c.Path()) {
			return c.Next()
		}

		if !rl.allow(c.IP()) {
			return problemResponse(c, fiber.StatusTooManyRequests,
				"rate_limit_exceeded", "Too Many Requests",
				"Rate limit exceeded. Please try again later.")
		}
		return c.Next()
	}
}
