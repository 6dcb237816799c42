package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var throttled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "register_requests_throttled_total",
	Help: "Requests rejected by the per-IP rate limit.",
})

// bucketIdleTTL is how long an IP has to stay quiet before its bucket is
// dropped; by then it would have refilled to capacity anyway.
const bucketIdleTTL = 10 * time.Minute

// TokenBucket is an in-memory per-IP rate limiter. Good enough for a studio
// deployment; swap for a redis-backed limiter if this ever runs replicated.
type TokenBucket struct {
	capacity  int
	rate      int
	mu        sync.Mutex
	state     map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter holding capacity tokens refilled at
// perMinute per minute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity:  capacity,
		rate:      perMinute,
		state:     make(map[string]*bucket),
		lastPrune: time.Now(),
	}
}

// GinMiddleware returns a gin handler enforcing per-IP limits. Probe endpoints
// stay exempt so a throttled client cannot starve health checks or scrapes.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/healthz", "/metrics":
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			throttled.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.pruneLocked(now)

	b, ok := l.state[key]
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// pruneLocked drops buckets idle past the TTL so the map tracks active
// clients, not every IP ever seen. Caller holds l.mu.
func (l *TokenBucket) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < bucketIdleTTL {
		return
	}
	l.lastPrune = now
	for k, b := range l.state {
		if now.Sub(b.last) > bucketIdleTTL {
			delete(l.state, k)
		}
	}
}
