package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimit applies a per-client-IP token bucket of r requests per
// second with burst b. Buckets idle for ten minutes are dropped by a
// background sweep so the map does not grow with every IP ever seen.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		buckets = make(map[string]*clientLimiter)
	)

	go func() {
		for range time.Tick(5 * time.Minute) {
			cutoff := time.Now().Add(-10 * time.Minute)
			mu.Lock()
			for ip, cl := range buckets {
				if cl.lastSeen.Before(cutoff) {
					delete(buckets, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		cl, ok := buckets[ip]
		if !ok {
			cl = &clientLimiter{bucket: rate.NewLimiter(r, b)}
			buckets[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.bucket.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
