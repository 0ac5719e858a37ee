package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Bucket count above which idle clients are forgotten
const pruneThreshold = 10000

// RateLimiter is a per-client token bucket
type RateLimiter struct {
	tokens         map[string]float64
	lastRefill     map[string]time.Time
	mu             sync.Mutex
	rate           float64 // tokens per second
	bucketSize     float64 // maximum tokens
	refillInterval time.Duration
	now            func() time.Time
}

func NewRateLimiter(rate float64, bucketSize float64) *RateLimiter {
	return &RateLimiter{
		tokens:         make(map[string]float64),
		lastRefill:     make(map[string]time.Time),
		rate:           rate,
		bucketSize:     bucketSize,
		refillInterval: time.Second,
		now:            time.Now,
	}
}

// Allow takes a token from key's bucket, reporting false when it is empty
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	if _, exists := rl.lastRefill[key]; !exists {
		if len(rl.lastRefill) >= pruneThreshold {
			// A bucket idle for a full refill is indistinguishable from a new one
			rl.pruneLocked(now, rl.fullRefill())
		}
		rl.tokens[key] = rl.bucketSize
		rl.lastRefill[key] = now
	}

	elapsed := now.Sub(rl.lastRefill[key])
	refilled := float64(elapsed) / float64(rl.refillInterval) * rl.rate
	rl.tokens[key] = min(rl.bucketSize, rl.tokens[key]+refilled)
	rl.lastRefill[key] = now

	if rl.tokens[key] < 1 {
		return false
	}
	rl.tokens[key]--
	return true
}

// Prune forgets clients whose buckets have been idle for longer than idle.
// A forgotten client starts again with a full bucket.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.pruneLocked(rl.now(), idle)
}

func (rl *RateLimiter) fullRefill() time.Duration {
	return time.Duration(rl.bucketSize / rl.rate * float64(rl.refillInterval))
}

func (rl *RateLimiter) pruneLocked(now time.Time, idle time.Duration) int {
	removed := 0
	for key, last := range rl.lastRefill {
		if now.Sub(last) > idle {
			delete(rl.lastRefill, key)
			delete(rl.tokens, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
