package middleware

import (
	"net/http"
	"sync"
	"time"
)

// TokenBucket implements token bucket rate limiting with a per-minute
// refill, matching the "N requests per minute" report quota.
type TokenBucket struct {
	mu            sync.Mutex
	capacity      int
	tokens        float64
	refillPerMin  float64
	lastRefill    time.Time
	now           func() time.Time
}

func NewTokenBucket(capacity, refillPerMinute int) *TokenBucket {
	tb := &TokenBucket{
		capacity:     capacity,
		tokens:       float64(capacity),
		refillPerMin: float64(refillPerMinute),
		now:          time.Now,
	}
	tb.lastRefill = tb.now()
	return tb
}

// SetNow overrides the clock, for tests.
func (tb *TokenBucket) SetNow(now func() time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.now = now
	tb.lastRefill = now()
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	// Refill fractionally based on time passed
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Minutes()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.refillPerMin
		if tb.tokens > float64(tb.capacity) {
			tb.tokens = float64(tb.capacity)
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimiter manages per-key buckets for general API throttling.
type RateLimiter struct {
	mu           sync.RWMutex
	buckets      map[string]*TokenBucket
	lastSeen     map[string]time.Time
	capacity     int
	refillPerMin int
}

func NewRateLimiter(capacity, refillPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		buckets:      make(map[string]*TokenBucket),
		lastSeen:     make(map[string]time.Time),
		capacity:     capacity,
		refillPerMin: refillPerMinute,
	}

	// Start cleanup goroutine to remove old buckets
	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		rl.lastSeen[key] = time.Now()
		rl.mu.Unlock()
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists := rl.buckets[key]; exists {
		return bucket
	}

	bucket = NewTokenBucket(rl.capacity, rl.refillPerMin)
	rl.buckets[key] = bucket
	rl.lastSeen[key] = time.Now()
	return bucket
}

func (rl *RateLimiter) Allow(key string) bool {
	bucket := rl.getBucket(key)
	return bucket.Allow()
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, seen := range rl.lastSeen {
			// Remove buckets that haven't been used in 10 minutes
			if now.Sub(seen) > 10*time.Minute {
				delete(rl.buckets, key)
				delete(rl.lastSeen, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware throttles per client IP across the whole API.
// capacity: max tokens in bucket; refillPerMinute: tokens added per minute
func RateLimitMiddleware(capacity, refillPerMinute int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(capacity, refillPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip rate limit for health check
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(r.RemoteAddr) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
