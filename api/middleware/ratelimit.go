package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/gatherer/config"
	"github.com/use-agent/gatherer/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdle  = time.Hour
	limiterSweep = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiters holds one token bucket per identity.
type limiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
}

func newLimiters(cfg config.RateLimitConfig) *limiters {
	return &limiters{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
	}
}

func (l *limiters) allow(identity string, now time.Time) bool {
	l.mu.Lock()
	entry, ok := l.entries[identity]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[identity] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()
	return entry.limiter.AllowN(now, 1)
}

// sweep evicts identities not seen since cutoff.
func (l *limiters) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate.
//
// Identities unused for an hour are evicted by a background goroutine.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	l := newLimiters(cfg)

	go func() {
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for now := range ticker.C {
			l.sweep(now.Add(-limiterIdle))
		}
	}()

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString(APIKeyContextKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		if !l.allow(identity, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.NewErrorResponse(
				models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down",
			))
			return
		}

		c.Next()
	}
}
